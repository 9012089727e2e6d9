package notify

import (
	"fmt"
	"strings"
	"sync"
	"text/template"

	"golang.org/x/text/language"
)

// A Catalog holds message templates per language. The first language which is added is the fallback.
// Each template text consists of a subject line, an empty line and the body.
type Catalog struct {
	mu        sync.RWMutex
	tags      []language.Tag
	matcher   language.Matcher
	templates map[language.Tag]map[string]*template.Template
}

func NewCatalog() *Catalog {
	return &Catalog{
		templates: make(map[language.Tag]map[string]*template.Template),
	}
}

// Register adds or replaces a template.
func (c *Catalog) Register(lang language.Tag, name, text string) error {
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return fmt.Errorf("parse template %s: %w", name, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.templates[lang]; !ok {
		c.templates[lang] = make(map[string]*template.Template)
		c.tags = append(c.tags, lang)
		c.matcher = language.NewMatcher(c.tags)
	}
	c.templates[lang][name] = tmpl
	return nil
}

// Render executes the template in the best matching language. It returns the subject and the body.
func (c *Catalog) Render(lang language.Tag, name string, data interface{}) (string, string, error) {

	c.mu.RLock()
	if len(c.tags) == 0 {
		c.mu.RUnlock()
		return "", "", fmt.Errorf("template %s not found", name)
	}
	_, index, _ := c.matcher.Match(lang)
	tmpl, ok := c.templates[c.tags[index]][name]
	if !ok {
		tmpl, ok = c.templates[c.tags[0]][name]
	}
	c.mu.RUnlock()

	if !ok {
		return "", "", fmt.Errorf("template %s not found", name)
	}

	var out strings.Builder
	if err := tmpl.Execute(&out, data); err != nil {
		return "", "", fmt.Errorf("render template %s: %w", name, err)
	}

	var subject, body = out.String(), ""
	if i := strings.Index(subject, "\n\n"); i >= 0 {
		subject, body = subject[:i], subject[i+2:]
	}
	return strings.TrimSpace(subject), strings.TrimSpace(body), nil
}

// Template names
const (
	TemplatePublished = "published"
	TemplateRejected  = "rejected"
	TemplateAssigned  = "assigned"
)

// DefaultCatalog contains English and German templates.
func DefaultCatalog() *Catalog {
	var c = NewCatalog()
	_ = c.Register(language.English, TemplatePublished, "Your {{.Type}} has been published\n\nYour {{.Type}} #{{.ID}} passed the review.{{if .Result}}\nReviewer note: {{.Result}}{{end}}")
	_ = c.Register(language.English, TemplateRejected, "Your {{.Type}} has been rejected\n\nYour {{.Type}} #{{.ID}} did not pass the review.{{if .Result}}\nReviewer note: {{.Result}}{{end}}")
	_ = c.Register(language.English, TemplateAssigned, "New review job\n\nPlease review {{.Type}} #{{.ID}}. Job {{.JobID}} is waiting for you.")
	_ = c.Register(language.German, TemplatePublished, "Dein Beitrag wurde veröffentlicht\n\nDein Beitrag ({{.Type}} #{{.ID}}) wurde geprüft und freigegeben.{{if .Result}}\nAnmerkung: {{.Result}}{{end}}")
	_ = c.Register(language.German, TemplateRejected, "Dein Beitrag wurde abgelehnt\n\nDein Beitrag ({{.Type}} #{{.ID}}) wurde geprüft und nicht freigegeben.{{if .Result}}\nAnmerkung: {{.Result}}{{end}}")
	_ = c.Register(language.German, TemplateAssigned, "Neue Prüfung\n\nBitte prüfe {{.Type}} #{{.ID}}. Prüfauftrag {{.JobID}} wartet auf dich.")
	return c
}
