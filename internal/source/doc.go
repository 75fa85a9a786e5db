// Package source retrieves raw listing fragments for a journal.
//
// Each journal owns an ordered Chain of strategies (static HTML, browser
// rendering, syndication feeds and the Crossref metadata API). The chain
// stops at the first strategy that yields at least one fragment; when every
// strategy fails the classified failures are joined into one error.
package source
