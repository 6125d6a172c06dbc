package extract

import (
	"errors"
	"testing"
)

const base = "https://www.chogangroup.com"

func TestConfirmationLink(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "relative completion anchor",
			html: `<html><body><a href="/smartorder/completed/abc">Confirm</a></body></html>`,
			want: base + "/smartorder/completed/abc",
		},
		{
			name: "absolute link kept",
			html: `<a href="https://other.example/validation?id=9">ok</a>`,
			want: "https://other.example/validation?id=9",
		},
		{
			name: "first match in document order",
			html: `<a href="/help">aide</a><a href="/Confirmation/1">a</a><a href="/validation/2">b</a>`,
			want: base + "/Confirmation/1",
		},
		{
			name: "skips fragments and script links",
			html: `<a href="#order">x</a><a href="javascript:order()">y</a><a href="orders/7">z</a>`,
			want: base + "/orders/7",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConfirmationLink(tt.html, base, nil)
			if err != nil {
				t.Fatalf("ConfirmationLink: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
			again, _ := ConfirmationLink(tt.html, base, nil)
			if again != got {
				t.Errorf("second extraction differs: %q", again)
			}
		})
	}
}

func TestConfirmationLinkNotFound(t *testing.T) {
	for _, html := range []string{
		"",
		`<html><body><p>Merci</p></body></html>`,
		`<a href="/login">Connexion</a><a>no href</a>`,
	} {
		if _, err := ConfirmationLink(html, base, nil); !errors.Is(err, ErrLinkNotFound) {
			t.Errorf("%q: expected ErrLinkNotFound, got %v", html, err)
		}
	}
}

func TestConfirmationLinkCustomKeywords(t *testing.T) {
	html := `<a href="/smartorder/completed/abc">Confirm</a><a href="/recap/5">r</a>`
	got, err := ConfirmationLink(html, base, []string{"recap"})
	if err != nil || got != base+"/recap/5" {
		t.Fatalf("got (%q, %v)", got, err)
	}
}

func TestCSRFToken(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{"hidden input", `<form><input type="hidden" name="_token" value="abc123"></form>`, "abc123"},
		{"meta tag", `<head><meta name="csrf-token" content="meta-tok"></head>`, "meta-tok"},
		{"input wins over meta", `<meta name="csrf-token" content="m"><input name="_token" value="i">`, "i"},
		{"absent", `<form><input name="email"></form>`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CSRFToken(tt.html, "_token"); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHasPasswordField(t *testing.T) {
	if !HasPasswordField(`<form><input type="password" name="password"></form>`) {
		t.Error("expected a password field")
	}
	if HasPasswordField(`<form><input type="text" name="ref"></form>`) {
		t.Error("unexpected password field")
	}
}
