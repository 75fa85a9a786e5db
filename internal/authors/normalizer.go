// Package authors turns raw author bylines into ordered lists of distinct names.
//
// Every author list that enters storage or leaves the query API passes through
// Normalize, which is the single place enforcing that the "others" sentinel is
// the last element. All functions are idempotent.
package authors

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"
)

// Others is the canonical sentinel for an elided remainder of an author list.
const Others = "others"

var (
	// Conjunctions must be whitespace-bounded so names like "Anderson" survive.
	separatorPattern = regexp.MustCompile(`(?i)\s*,\s*(?:and\s+|&\s+)?|\s+(?:and|&)\s+`)
	etAlSuffix       = regexp.MustCompile(`(?i)[\s,]+et\.?\s+al\.?$`)
	whitespace       = regexp.MustCompile(`\s+`)
)

// NormalizeMarkup flattens HTML author markup into names. Elements matching any
// of the delimiter selectors are replaced by their own text padded with spaces
// before text extraction, so a styled "and" separator cannot glue two names.
func NormalizeMarkup(markup string, delimiterSelectors ...string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return NormalizeText(markup)
	}
	for _, sel := range delimiterSelectors {
		if strings.TrimSpace(sel) == "" {
			continue
		}
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			s.ReplaceWithHtml(" " + htmlEscape(s.Text()) + " ")
		})
	}
	// Block-level siblings often carry no whitespace between them.
	doc.Find("br").ReplaceWithHtml(", ")
	return NormalizeText(doc.Text())
}

// NormalizeText splits a flattened byline on commas and whitespace-bounded
// conjunctions and normalizes the resulting names.
func NormalizeText(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return []string{}
	}
	text = strings.TrimPrefix(text, "By ")
	text = strings.TrimPrefix(text, "by ")
	return Normalize(separatorPattern.Split(text, -1))
}

// Normalize cleans an already split list of names: it trims, collapses
// whitespace, applies NFC, maps sentinel variants to Others, drops empty and
// duplicate entries, and moves the sentinel to the end.
func Normalize(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	hasOthers := false
	for _, raw := range names {
		name := clean(raw)
		if name == "" {
			continue
		}
		if loc := etAlSuffix.FindStringIndex(name); loc != nil && loc[0] > 0 {
			hasOthers = true
			name = clean(name[:loc[0]])
		}
		if IsSentinel(name) {
			hasOthers = true
			continue
		}
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	if hasOthers {
		out = append(out, Others)
	}
	return out
}

// IsSentinel reports whether name stands for an elided remainder of the list.
func IsSentinel(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.TrimRight(n, ".,; ")
	switch n {
	case "others", "and others", "et al", "et. al", "et al.", "and et al":
		return true
	}
	return false
}

// SearchForms returns the spellings an author filter should match: the query
// as typed plus its "Last, First" or "First Last" counterpart.
func SearchForms(query string) []string {
	q := clean(query)
	if q == "" {
		return nil
	}
	forms := []string{q}
	if first, last, ok := strings.Cut(q, ","); ok {
		swapped := clean(last) + " " + clean(first)
		if clean(swapped) != "" {
			forms = append(forms, clean(swapped))
		}
		return forms
	}
	parts := strings.Fields(q)
	if len(parts) >= 2 {
		last := parts[len(parts)-1]
		first := strings.Join(parts[:len(parts)-1], " ")
		forms = append(forms, last+", "+first)
	}
	return forms
}

func clean(raw string) string {
	s := norm.NFC.String(raw)
	s = whitespace.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	s = strings.TrimFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || unicode.IsSpace(r)
	})
	if !strings.ContainsFunc(s, unicode.IsLetter) {
		return ""
	}
	return s
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
