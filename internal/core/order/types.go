package order

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRequest is wrapped by every validation failure.
var ErrInvalidRequest = errors.New("invalid order request")

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Client struct {
	Prenom      string `json:"prenom"`
	Nom         string `json:"nom"`
	Email       string `json:"email"`
	Telephone   string `json:"telephone"`
	Adresse     string `json:"adresse"`
	CodePostal  string `json:"codePostal"`
	Departement string `json:"departement"`
	Ville       string `json:"ville"`
	Pays        string `json:"pays"`
}

type Product struct {
	Ref      string `json:"ref"`
	Quantite int    `json:"quantite"`
}

// OrderRequest is one order to place on the reseller portal. It is never
// modified once a run started.
type OrderRequest struct {
	Credentials Credentials `json:"credentials"`
	Client      Client      `json:"client"`
	Produits    []Product   `json:"produits"`
	// Backend optionally overrides the configured transport ("http" or "browser").
	Backend string `json:"backend,omitempty"`
}

// AutomationResult is the terminal state of one run.
type AutomationResult struct {
	Success     bool     `json:"success"`
	ChoganLink  string   `json:"chogan_link,omitempty"`
	Error       string   `json:"error,omitempty"`
	Details     string   `json:"details,omitempty"`
	Screenshots []string `json:"screenshots,omitempty"`
}

// Validate checks field presence before anything reaches the remote site.
func (r OrderRequest) Validate() error {
	var problems []string
	if strings.TrimSpace(r.Credentials.Email) == "" {
		problems = append(problems, "credentials.email is required")
	}
	if r.Credentials.Password == "" {
		problems = append(problems, "credentials.password is required")
	}
	for _, f := range []struct{ name, value string }{
		{"client.prenom", r.Client.Prenom},
		{"client.nom", r.Client.Nom},
		{"client.email", r.Client.Email},
		{"client.telephone", r.Client.Telephone},
		{"client.adresse", r.Client.Adresse},
		{"client.codePostal", r.Client.CodePostal},
		{"client.ville", r.Client.Ville},
	} {
		if strings.TrimSpace(f.value) == "" {
			problems = append(problems, f.name+" is required")
		}
	}
	if len(r.Produits) == 0 {
		problems = append(problems, "produits must contain at least one product")
	}
	for i, p := range r.Produits {
		if strings.TrimSpace(p.Ref) == "" {
			problems = append(problems, fmt.Sprintf("produits[%d].ref is required", i))
		}
		if p.Quantite < 1 {
			problems = append(problems, fmt.Sprintf("produits[%d].quantite must be >= 1", i))
		}
	}
	switch r.Backend {
	case "", "http", "browser":
	default:
		problems = append(problems, fmt.Sprintf("backend %q is not supported", r.Backend))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(problems, "; "))
	}
	return nil
}

// Failure builds a failed result.
func Failure(err error, details string) AutomationResult {
	return AutomationResult{Success: false, Error: err.Error(), Details: details}
}
