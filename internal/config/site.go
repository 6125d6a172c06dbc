package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Site describes the remote reseller portal. None of it is a documented API,
// so every path, field name and selector can be overridden from YAML when the
// markup changes.
type Site struct {
	BaseURL string `yaml:"base_url"`

	Paths     SitePaths     `yaml:"paths"`
	Fields    SiteFields    `yaml:"fields"`
	Selectors SiteSelectors `yaml:"selectors"`

	// LinkKeywords are matched against anchor hrefs on the completion page.
	LinkKeywords []string `yaml:"link_keywords"`
	// LoginPhrases are the visible texts of login buttons, for the text search fallback.
	LoginPhrases []string `yaml:"login_phrases"`
	// ShippingChoice is the value posted for shipping cost allocation.
	ShippingChoice string `yaml:"shipping_choice"`
}

type SitePaths struct {
	Login     string `yaml:"login"`
	Order     string `yaml:"order"`
	Client    string `yaml:"client"`
	Product   string `yaml:"product"`
	Shipping  string `yaml:"shipping"`
	Finalize  string `yaml:"finalize"`
	Completed string `yaml:"completed"`
}

// SiteFields are form field names for the HTTP-simulation backend.
type SiteFields struct {
	CSRF          string `yaml:"csrf"`
	LoginEmail    string `yaml:"login_email"`
	LoginPassword string `yaml:"login_password"`

	Prenom      string `yaml:"prenom"`
	Nom         string `yaml:"nom"`
	Email       string `yaml:"email"`
	Telephone   string `yaml:"telephone"`
	Adresse     string `yaml:"adresse"`
	CodePostal  string `yaml:"code_postal"`
	Departement string `yaml:"departement"`
	Ville       string `yaml:"ville"`
	Pays        string `yaml:"pays"`

	ProductRef      string `yaml:"product_ref"`
	ProductQuantity string `yaml:"product_quantity"`
	Shipping        string `yaml:"shipping"`
	Finalize        string `yaml:"finalize"`
}

// SiteSelectors are ranked CSS selector lists for the browser backend; the
// first one that matches wins.
type SiteSelectors struct {
	LoginEmail    []string `yaml:"login_email"`
	LoginPassword []string `yaml:"login_password"`
	LoginSubmit   []string `yaml:"login_submit"`

	// ClientFields maps a client field name (prenom, nom, ...) to its selectors.
	ClientFields map[string][]string `yaml:"client_fields"`
	ClientSubmit []string            `yaml:"client_submit"`

	ProductRef      []string `yaml:"product_ref"`
	ProductQuantity []string `yaml:"product_quantity"`
	ProductAdd      []string `yaml:"product_add"`

	Shipping []string `yaml:"shipping"`
	Finalize []string `yaml:"finalize"`
}

func DefaultSite() *Site {
	return &Site{
		BaseURL: "https://www.chogangroup.com",
		Paths: SitePaths{
			Login:     "/login",
			Order:     "/smartorder",
			Client:    "/smartorder/client",
			Product:   "/smartorder/add-product",
			Shipping:  "/smartorder/shipping",
			Finalize:  "/smartorder/finalize",
			Completed: "/smartorder/completed",
		},
		Fields: SiteFields{
			CSRF:            "_token",
			LoginEmail:      "email",
			LoginPassword:   "password",
			Prenom:          "prenom",
			Nom:             "nom",
			Email:           "email",
			Telephone:       "telephone",
			Adresse:         "adresse",
			CodePostal:      "code_postal",
			Departement:     "departement",
			Ville:           "ville",
			Pays:            "pays",
			ProductRef:      "ref",
			ProductQuantity: "quantite",
			Shipping:        "frais_port",
			Finalize:        "terminer",
		},
		Selectors: SiteSelectors{
			LoginEmail:    []string{"input[name='email']", "input[type='email']", "#email"},
			LoginPassword: []string{"input[name='password']", "input[type='password']", "#password"},
			LoginSubmit: []string{
				"button[type='submit']",
				"input[type='submit']",
				"form button.btn-primary",
				"#login-button",
			},
			ClientFields: map[string][]string{
				"prenom":      {"input[name='prenom']", "#prenom"},
				"nom":         {"input[name='nom']", "#nom"},
				"email":       {"input[name='email']", "#email"},
				"telephone":   {"input[name='telephone']", "input[type='tel']"},
				"adresse":     {"input[name='adresse']", "textarea[name='adresse']"},
				"codePostal":  {"input[name='code_postal']", "#code_postal"},
				"departement": {"input[name='departement']", "#departement"},
				"ville":       {"input[name='ville']", "#ville"},
				"pays":        {"input[name='pays']", "select[name='pays']"},
			},
			ClientSubmit:    []string{"form button[type='submit']", "input[type='submit']"},
			ProductRef:      []string{"input[name='ref']", "#product-ref"},
			ProductQuantity: []string{"input[name='quantite']", "#product-qty"},
			ProductAdd:      []string{"button[name='add']", "form button[type='submit']"},
			Shipping:        []string{"input[name='frais_port'][value='client']", "label[for='frais_port_client']"},
			Finalize:        []string{"button[name='terminer']", "form button[type='submit']"},
		},
		LinkKeywords:   []string{"confirmation", "validation", "order"},
		LoginPhrases:   []string{"se connecter", "connexion", "login", "log in", "sign in", "accedi"},
		ShippingChoice: "client",
	}
}

// LoadSite reads a YAML site profile over the defaults. A missing file is not
// an error: the built-in profile is returned.
func LoadSite(path string) (*Site, error) {
	site := DefaultSite()
	if path == "" {
		return site, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return site, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, site); err != nil {
		return nil, fmt.Errorf("parse site profile %s: %w", path, err)
	}
	if err := site.Validate(); err != nil {
		return nil, err
	}
	return site, nil
}

func (s *Site) Validate() error {
	if !strings.HasPrefix(s.BaseURL, "http://") && !strings.HasPrefix(s.BaseURL, "https://") {
		return fmt.Errorf("site base_url must be absolute, got %q", s.BaseURL)
	}
	if len(s.LinkKeywords) == 0 {
		return fmt.Errorf("site link_keywords must not be empty")
	}
	return nil
}

// URL joins a site path onto the base URL.
func (s *Site) URL(path string) string {
	return strings.TrimRight(s.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// Save writes the profile as YAML, in the format LoadSite reads.
func (s *Site) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
