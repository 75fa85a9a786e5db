package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/journal-tracker/internal/authors"
	"github.com/JakeFAU/journal-tracker/internal/tracker"
)

var (
	doiPattern = regexp.MustCompile(`10\.\d{4,9}/[^\s"'<>&?#]+`)
	spaces     = regexp.MustCompile(`\s+`)
)

// structuredLayouts are accepted for feed and API fragments in addition to the journal layouts.
var structuredLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02", time.RFC1123Z, time.RFC1123}

// Extractor applies one journal's Rules to fragments.
type Extractor struct {
	rules Rules
}

// New compiles rules into an Extractor.
func New(rules Rules) (*Extractor, error) {
	if err := rules.compile(); err != nil {
		return nil, err
	}
	return &Extractor{rules: rules}, nil
}

// MustNew is New for rule tables known at compile time.
func MustNew(rules Rules) *Extractor {
	e, err := New(rules)
	if err != nil {
		panic(err)
	}
	return e
}

// Extract parses a fragment into a record. The returned error wraps
// tracker.ErrExtraction when the fragment has no usable title.
func (e *Extractor) Extract(f tracker.Fragment) (tracker.Record, error) {
	var (
		rec tracker.Record
		err error
	)
	if f.Structured() {
		rec = e.fromFields(f)
	} else {
		rec, err = e.fromMarkup(f)
		if err != nil {
			return tracker.Record{}, err
		}
	}
	rec.Title = collapse(rec.Title)
	if rec.Title == "" {
		return tracker.Record{}, fmt.Errorf("%w: %s fragment %d/%d has no title",
			tracker.ErrExtraction, f.Journal, f.Page, f.Index)
	}
	rec.Page = f.Page
	rec.Index = f.Index
	return rec, nil
}

// ExtractAll extracts every fragment, returning the records and the failures separately.
func (e *Extractor) ExtractAll(fragments []tracker.Fragment) ([]tracker.Record, []error) {
	records := make([]tracker.Record, 0, len(fragments))
	var failures []error
	for _, f := range fragments {
		rec, err := e.Extract(f)
		if err != nil {
			failures = append(failures, err)
			continue
		}
		records = append(records, rec)
	}
	return records, failures
}

func (e *Extractor) fromMarkup(f tracker.Fragment) (tracker.Record, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(f.Markup))
	if err != nil {
		return tracker.Record{}, fmt.Errorf("%w: parse fragment: %v", tracker.ErrExtraction, err)
	}
	root := doc.Selection
	citation := e.rules.Citation.value(root)
	rec := tracker.Record{
		Title:    e.rules.Title.value(root),
		URL:      resolve(f.BaseURL, e.rules.URL.value(root)),
		PDFURL:   resolve(f.BaseURL, e.rules.PDFURL.value(root)),
		BibURL:   resolve(f.BaseURL, e.rules.BibURL.value(root)),
		Abstract: collapse(e.rules.Abstract.value(root)),
		Section:  collapse(e.rules.Section.value(root)),
		Authors:  e.authors(root),
	}
	rec.DOI = FindDOI(e.rules.DOI.value(root), citation, rec.URL)
	rec.PublicationDate = ParseDate(e.rules.PublicationDate.value(root), e.rules.DateLayouts)
	rec.AcceptedDate = ParseDate(e.rules.AcceptedDate.value(root), e.rules.DateLayouts)
	return rec, nil
}

func (e *Extractor) fromFields(f tracker.Fragment) tracker.Record {
	layouts := append(append([]string{}, e.rules.DateLayouts...), structuredLayouts...)
	get := func(field tracker.Field) string { return strings.TrimSpace(f.Fields[field]) }
	rec := tracker.Record{
		Title:    get(tracker.FieldTitle),
		URL:      resolve(f.BaseURL, get(tracker.FieldURL)),
		PDFURL:   resolve(f.BaseURL, get(tracker.FieldPDFURL)),
		BibURL:   resolve(f.BaseURL, get(tracker.FieldBibURL)),
		Abstract: collapse(StripMarkup(get(tracker.FieldAbstract))),
		Bibtex:   get(tracker.FieldBibtex),
		Section:  collapse(get(tracker.FieldSection)),
		Authors:  authors.Normalize(f.Authors),
	}
	rec.DOI = FindDOI(get(tracker.FieldDOI), get(tracker.FieldCitation), rec.URL)
	rec.PublicationDate = ParseDate(get(tracker.FieldPublicationDate), layouts)
	rec.AcceptedDate = ParseDate(get(tracker.FieldAcceptedDate), layouts)
	return rec
}

func (e *Extractor) authors(root *goquery.Selection) []string {
	for _, rule := range e.rules.Authors {
		var names []string
		switch {
		case rule.ItemSelector != "":
			root.Find(rule.ItemSelector).Each(func(_ int, s *goquery.Selection) {
				names = append(names, s.Text())
			})
			names = authors.Normalize(names)
		default:
			container := root
			if rule.Selector != "" {
				container = root.Find(rule.Selector).First()
			}
			if container.Length() == 0 {
				continue
			}
			if rule.re != nil {
				m := rule.re.FindStringSubmatch(collapse(container.Text()))
				if m == nil {
					continue
				}
				names = authors.NormalizeText(m[len(m)-1])
				break
			}
			html, err := goquery.OuterHtml(container)
			if err != nil {
				continue
			}
			names = authors.NormalizeMarkup(html, rule.Delimiters...)
		}
		if len(names) > 0 {
			return names
		}
	}
	return []string{}
}

func (f Field) value(root *goquery.Selection) string {
	for _, rule := range f {
		sel := root
		if rule.Selector != "" {
			sel = root.Find(rule.Selector)
		}
		var v string
		sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
			v = rule.apply(s)
			return v == ""
		})
		if v != "" {
			return v
		}
	}
	return ""
}

func (r Rule) apply(s *goquery.Selection) string {
	var raw string
	if r.Attr != "" {
		raw, _ = s.Attr(r.Attr)
	} else {
		raw = s.Text()
	}
	raw = collapse(raw)
	if r.TrimPrefix != "" && len(raw) >= len(r.TrimPrefix) &&
		strings.EqualFold(raw[:len(r.TrimPrefix)], r.TrimPrefix) {
		raw = strings.TrimSpace(raw[len(r.TrimPrefix):])
	}
	if r.re != nil {
		m := r.re.FindStringSubmatch(raw)
		if m == nil {
			return ""
		}
		raw = strings.TrimSpace(m[len(m)-1])
	}
	return raw
}

// FindDOI returns the first DOI found in the candidates, in order.
func FindDOI(candidates ...string) string {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		decoded, err := url.PathUnescape(c)
		if err == nil {
			c = decoded
		}
		if m := doiPattern.FindString(c); m != "" {
			return strings.TrimRight(m, ".,;)]")
		}
	}
	return ""
}

// ParseDate tries each layout in order and returns nil when none matches.
func ParseDate(raw string, layouts []string) *time.Time {
	raw = collapse(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// StripMarkup reduces an HTML or JATS snippet to its text.
func StripMarkup(raw string) string {
	if !strings.Contains(raw, "<") {
		return raw
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return raw
	}
	return doc.Text()
}

// FragmentHTML renders listing nodes for later extraction, wrapping table and
// definition-list parts so the HTML parser keeps them. Every node in the
// selection is rendered, which lets a dt/dd pair travel as one fragment.
func FragmentHTML(s *goquery.Selection) (string, error) {
	var b strings.Builder
	for i := range s.Nodes {
		html, err := goquery.OuterHtml(s.Eq(i))
		if err != nil {
			return "", fmt.Errorf("render fragment: %w", err)
		}
		b.WriteString(html)
	}
	html := b.String()
	switch goquery.NodeName(s) {
	case "tr":
		return "<table><tbody>" + html + "</tbody></table>", nil
	case "td", "th":
		return "<table><tbody><tr>" + html + "</tr></tbody></table>", nil
	case "dt", "dd":
		return "<dl>" + html + "</dl>", nil
	}
	return html, nil
}

// SelectText applies a single field's rules to a whole document, such as an
// article landing page fetched during enrichment.
func SelectText(markup string, field Field) (string, error) {
	rules := Rules{Abstract: field}
	if err := rules.compile(); err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("parse document: %w", err)
	}
	return collapse(rules.Abstract.value(doc.Selection)), nil
}

func resolve(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || base == "" {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

func collapse(s string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}
