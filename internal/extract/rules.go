// Package extract turns raw listing fragments into candidate paper records.
//
// Extraction is driven by per-journal Rules: each record field maps to an
// ordered list of selector/attribute/pattern alternatives, so supporting a new
// journal means writing rules rather than code. Missing optional fields leave
// the record valid; a missing title discards it.
package extract

import (
	"fmt"
	"regexp"
)

// Rule locates one candidate value inside a fragment.
type Rule struct {
	// Selector is a CSS selector relative to the fragment; empty selects the fragment itself.
	Selector string
	// Attr reads an attribute instead of the element text.
	Attr string
	// Pattern keeps the first submatch (or the whole match) of a regular expression.
	Pattern string
	// TrimPrefix drops a leading label such as "Published online:".
	TrimPrefix string

	re *regexp.Regexp
}

// Field is an ordered list of alternatives; the first non-empty value wins.
type Field []Rule

// AuthorRule locates the author list of a fragment.
type AuthorRule struct {
	// ItemSelector matches one element per author.
	ItemSelector string
	// Selector matches a byline container whose markup is normalized as a whole.
	Selector string
	// Delimiters are selectors of inline separator elements inside the container.
	Delimiters []string
	// Pattern narrows the container text before splitting.
	Pattern string

	re *regexp.Regexp
}

// Rules is the declarative extraction table for one journal.
type Rules struct {
	Title           Field
	URL             Field
	PDFURL          Field
	BibURL          Field
	DOI             Field
	Abstract        Field
	Section         Field
	PublicationDate Field
	AcceptedDate    Field
	Citation        Field
	Authors         []AuthorRule
	// DateLayouts are tried in order with time.Parse.
	DateLayouts []string
}

func (r *Rules) compile() error {
	fields := []*Field{
		&r.Title, &r.URL, &r.PDFURL, &r.BibURL, &r.DOI, &r.Abstract,
		&r.Section, &r.PublicationDate, &r.AcceptedDate, &r.Citation,
	}
	for _, f := range fields {
		compiled := make(Field, len(*f))
		for i, rule := range *f {
			if rule.Pattern != "" {
				re, err := regexp.Compile(rule.Pattern)
				if err != nil {
					return fmt.Errorf("compile pattern %q: %w", rule.Pattern, err)
				}
				rule.re = re
			}
			compiled[i] = rule
		}
		*f = compiled
	}
	authors := make([]AuthorRule, len(r.Authors))
	for i, rule := range r.Authors {
		if rule.Pattern != "" {
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				return fmt.Errorf("compile author pattern %q: %w", rule.Pattern, err)
			}
			rule.re = re
		}
		authors[i] = rule
	}
	r.Authors = authors
	return nil
}
