package markdown

import (
	"strings"
	"testing"
)

func TestVisibleTextDropsScripts(t *testing.T) {
	html := `<html><head><title>T</title><style>p{}</style></head><body>
		<script>var challenge = "just a moment";</script>
		<h1>  Bonjour   </h1>
		<p>Commande   en cours</p>
	</body></html>`
	got := VisibleText(html)
	if strings.Contains(got, "just a moment") {
		t.Errorf("script text leaked: %q", got)
	}
	if got != "Bonjour\nCommande en cours" {
		t.Errorf("got %q", got)
	}
}

func TestTitle(t *testing.T) {
	if got := Title(`<html><head><title> Just a moment... </title></head></html>`); got != "Just a moment..." {
		t.Errorf("got %q", got)
	}
}

func TestExcerptPrefersMainAndTruncates(t *testing.T) {
	html := `<body><nav>menu</nav><main><h2>Erreur</h2><p>Référence inconnue</p></main></body>`
	got := Excerpt(html, 0)
	if strings.Contains(got, "menu") {
		t.Errorf("excerpt should only hold main content: %q", got)
	}
	if !strings.Contains(got, "## Erreur") || !strings.Contains(got, "Référence inconnue") {
		t.Errorf("got %q", got)
	}

	short := Excerpt(html, 5)
	if !strings.HasSuffix(short, "…") || len([]rune(short)) > 6 {
		t.Errorf("truncated excerpt = %q", short)
	}
}
