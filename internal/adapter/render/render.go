package render

import (
	"embed"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"feedgen/internal/domain"
	"feedgen/internal/usecase"
)

//go:embed templates/*/*.xml.tmpl
var templatesFS embed.FS

// DateLayout - формат атрибута date в заголовке фида.
const DateLayout = "2006-01-02 15:04"

var (
	errNoCategoryID = errors.New("category has no id")
	errNoOfferID    = errors.New("offer has no id")
)

type templateSet struct {
	header   *template.Template
	category *template.Template
	offer    *template.Template
	footer   *template.Template
}

type headerData struct {
	Date    string
	SiteURL string
}

type categoryData struct {
	ID       string
	Level    int
	ParentID string
	URL      string
	Title    string
}

type offerData struct {
	ID          string
	CategoryID  string
	Available   bool
	Name        string
	URL         string
	Price       string
	CurrencyID  string
	Picture     string
	Description string
}

// Renderer отрисовывает фрагменты одного варианта фида по встроенным шаблонам.
// Варианты отличаются набором шаблонов и тем, как вычисляются ссылки.
type Renderer struct {
	name        domain.FeedName
	siteURL     string
	now         func() time.Time
	tpl         templateSet
	categoryURL func(domain.Category) string
	offerURL    func(siteURL string, offer domain.Offer) string
}

// NewRegistry возвращает закрытый реестр рендереров: по одному на каждый FeedName.
// now задает время в заголовке; nil означает time.Now.
func NewRegistry(siteURL string, now func() time.Time) (map[domain.FeedName]usecase.FeedRenderer, error) {
	if now == nil {
		now = time.Now
	}
	registry := make(map[domain.FeedName]usecase.FeedRenderer, len(domain.AllFeedNames()))
	for _, name := range domain.AllFeedNames() {
		r, err := newRenderer(name, siteURL, now)
		if err != nil {
			return nil, err
		}
		registry[name] = r
	}
	return registry, nil
}

func newRenderer(name domain.FeedName, siteURL string, now func() time.Time) (*Renderer, error) {
	tpl, err := loadTemplates(name.String())
	if err != nil {
		return nil, fmt.Errorf("templates for %s: %w", name, err)
	}
	r := &Renderer{name: name, siteURL: strings.TrimRight(siteURL, "/"), now: now, tpl: tpl}
	switch name {
	case domain.FeedExample:
		r.categoryURL = func(c domain.Category) string { return "/catalog/" + c.Slug + "/" }
		r.offerURL = func(siteURL string, o domain.Offer) string {
			if o.URL == "" || strings.Contains(o.URL, "://") {
				return o.URL
			}
			return siteURL + "/" + strings.TrimLeft(o.URL, "/")
		}
	case domain.FeedExample2:
		r.categoryURL = func(c domain.Category) string { return c.URL }
		r.offerURL = func(_ string, o domain.Offer) string { return o.URL }
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrRendererNotFound, name)
	}
	return r, nil
}

func loadTemplates(variant string) (templateSet, error) {
	var set templateSet
	for _, t := range []struct {
		part string
		dst  **template.Template
	}{
		{"header", &set.header},
		{"category", &set.category},
		{"offer", &set.offer},
		{"footer", &set.footer},
	} {
		path := "templates/" + variant + "/" + t.part + ".xml.tmpl"
		src, err := templatesFS.ReadFile(path)
		if err != nil {
			return templateSet{}, err
		}
		tpl, err := template.New(t.part).
			Funcs(template.FuncMap{"xml": escapeXML}).
			Option("missingkey=error").
			Parse(strings.TrimRight(string(src), "\n"))
		if err != nil {
			return templateSet{}, fmt.Errorf("parse %s: %w", path, err)
		}
		*t.dst = tpl
	}
	return set, nil
}

// FeedName возвращает вариант фида, который отрисовывает рендерер.
func (r *Renderer) FeedName() domain.FeedName { return r.name }

// RenderHeader отрисовывает начало документа до списка категорий.
func (r *Renderer) RenderHeader() (string, error) {
	return execute(r.tpl.header, headerData{
		Date:    r.now().Format(DateLayout),
		SiteURL: r.siteURL,
	})
}

// RenderCategory отрисовывает одну категорию.
func (r *Renderer) RenderCategory(c domain.Category) (string, error) {
	if c.ID == "" {
		return "", errNoCategoryID
	}
	return execute(r.tpl.category, categoryData{
		ID:       c.ID,
		Level:    c.Level,
		ParentID: c.ParentID,
		URL:      r.categoryURL(c),
		Title:    c.Title,
	})
}

// RenderOffer отрисовывает одно предложение.
func (r *Renderer) RenderOffer(o domain.Offer) (string, error) {
	if o.ID == "" {
		return "", errNoOfferID
	}
	return execute(r.tpl.offer, offerData{
		ID:          o.ID,
		CategoryID:  o.CategoryID,
		Available:   o.Available,
		Name:        o.Name,
		URL:         r.offerURL(r.siteURL, o),
		Price:       o.Price,
		CurrencyID:  o.CurrencyID,
		Picture:     o.Picture,
		Description: o.Description,
	})
}

// RenderFooter закрывает документ.
func (r *Renderer) RenderFooter() (string, error) {
	return execute(r.tpl.footer, nil)
}

func execute(tpl *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := tpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

func escapeXML(v any) (string, error) {
	var s string
	switch val := v.(type) {
	case string:
		s = val
	case int:
		s = strconv.Itoa(val)
	case fmt.Stringer:
		s = val.String()
	default:
		s = fmt.Sprint(val)
	}
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		return "", err
	}
	return b.String(), nil
}
