package tracker

import (
	"net/http"
	"strings"
	"time"
)

// Journal is a static reference entry for one tracked journal.
type Journal struct {
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation"`
	URL          string `json:"url"`
	PapersURL    string `json:"papers_url"`
}

// Record is a candidate paper produced by the pipeline before persistence.
type Record struct {
	Title             string     `json:"title"`
	URL               string     `json:"url,omitempty"`
	PDFURL            string     `json:"pdf_url,omitempty"`
	DOI               string     `json:"doi,omitempty"`
	Abstract          string     `json:"abstract,omitempty"`
	Bibtex            string     `json:"bibtex,omitempty"`
	Authors           []string   `json:"authors"`
	PublicationDate   *time.Time `json:"publication_date,omitempty"`
	AcceptedDate      *time.Time `json:"accepted_date,omitempty"`
	Section           string     `json:"section,omitempty"`
	OrderingTimestamp time.Time  `json:"ordering_timestamp"`
	ListingRank       int        `json:"listing_rank"`

	// BibURL points at a citation export to fetch during enrichment.
	BibURL string `json:"-"`
	// Page and Index locate the record in the source listing.
	Page  int `json:"-"`
	Index int `json:"-"`
}

// Field names a record field addressable by extraction rules and structured fragments.
type Field string

// Record fields.
const (
	FieldTitle           Field = "title"
	FieldURL             Field = "url"
	FieldPDFURL          Field = "pdf_url"
	FieldDOI             Field = "doi"
	FieldAbstract        Field = "abstract"
	FieldBibtex          Field = "bibtex"
	FieldBibURL          Field = "bib_url"
	FieldPublicationDate Field = "publication_date"
	FieldAcceptedDate    Field = "accepted_date"
	FieldSection         Field = "section"
	FieldCitation        Field = "citation"
)

// Fragment is one raw listing entry returned by a source strategy.
// HTML strategies fill Markup; feed and API strategies fill Fields and Authors.
type Fragment struct {
	Journal  string
	Strategy string
	BaseURL  string
	Page     int
	Index    int
	Markup   string
	Fields   map[Field]string
	Authors  []string
}

// Structured reports whether the fragment carries pre-parsed fields instead of markup.
func (f Fragment) Structured() bool {
	return f.Markup == "" && len(f.Fields) > 0
}

// SaveOutcome classifies the result of a gateway save.
type SaveOutcome string

// Save outcomes.
const (
	OutcomeInserted SaveOutcome = "inserted"
	OutcomeSkipped  SaveOutcome = "skipped"
	OutcomeUpdated  SaveOutcome = "updated"
)

// SaveResult describes what a save did.
type SaveResult struct {
	Outcome       SaveOutcome
	PaperID       int64
	UpdatedFields []string
	// PreviousPublicationDate is set when the publication date was reconciled.
	PreviousPublicationDate *time.Time
}

// NewPaper is the normalized payload handed to a Store.
type NewPaper struct {
	Journal string
	Record  Record
	Topics  []string
}

// StoredPaper is a persisted paper as returned by queries.
type StoredPaper struct {
	ID                int64      `json:"id"`
	Title             string     `json:"title"`
	URL               string     `json:"url,omitempty"`
	PDFURL            string     `json:"pdf_url,omitempty"`
	DOI               string     `json:"doi,omitempty"`
	Abstract          string     `json:"abstract,omitempty"`
	Bibtex            string     `json:"bibtex,omitempty"`
	Authors           []string   `json:"authors"`
	Journal           string     `json:"journal"`
	Section           string     `json:"section,omitempty"`
	PublicationDate   *time.Time `json:"publication_date,omitempty"`
	AcceptedDate      *time.Time `json:"accepted_date,omitempty"`
	OrderingTimestamp time.Time  `json:"ordering_timestamp"`
	ListingRank       int        `json:"listing_rank"`
	ScrapedAt         time.Time  `json:"scraped_date"`
	Topics            []string   `json:"topics,omitempty"`
}

// EffectiveTime is the publication date when known, else the ordering timestamp.
func (p StoredPaper) EffectiveTime() time.Time {
	if p.PublicationDate != nil {
		return *p.PublicationDate
	}
	return p.OrderingTimestamp
}

// SortOrder selects the ordering of a paper query.
type SortOrder string

// Supported sort orders.
const (
	SortDateDesc  SortOrder = "date_desc"
	SortDateAsc   SortOrder = "date_asc"
	SortTitleAsc  SortOrder = "title_asc"
	SortTitleDesc SortOrder = "title_desc"
)

// ParseSortOrder maps a query-string value to a SortOrder, defaulting to date_desc.
func ParseSortOrder(raw string) (SortOrder, bool) {
	switch SortOrder(strings.ToLower(strings.TrimSpace(raw))) {
	case "", SortDateDesc:
		return SortDateDesc, true
	case SortDateAsc:
		return SortDateAsc, true
	case SortTitleAsc:
		return SortTitleAsc, true
	case SortTitleDesc:
		return SortTitleDesc, true
	default:
		return SortDateDesc, false
	}
}

// PaperQuery filters and orders a paper listing.
type PaperQuery struct {
	Journal string
	// AuthorForms are alternative spellings matched by case-insensitive containment.
	AuthorForms []string
	Topic       string
	// Since keeps papers whose effective time is at or after the instant.
	Since *time.Time
	Sort  SortOrder
	Limit int
}

// Stats summarises stored paper counts.
type Stats struct {
	TotalPapers  int            `json:"total_papers"`
	JournalStats map[string]int `json:"journal_stats"`
}

// TopicCount is the number of papers tagged with one topic.
type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// SyncRecord is an externally prepared record submitted to the sync interface.
type SyncRecord struct {
	Journal           string   `json:"journal"`
	Title             string   `json:"title"`
	URL               string   `json:"url,omitempty"`
	PDFURL            string   `json:"pdf_url,omitempty"`
	DOI               string   `json:"doi,omitempty"`
	Abstract          string   `json:"abstract,omitempty"`
	Bibtex            string   `json:"bibtex,omitempty"`
	Authors           []string `json:"authors"`
	PublicationDate   string   `json:"publication_date,omitempty"`
	AcceptedDate      string   `json:"accepted_date,omitempty"`
	Section           string   `json:"section,omitempty"`
	OrderingTimestamp string   `json:"ordering_timestamp,omitempty"`
	ListingRank       int      `json:"listing_rank,omitempty"`
}

// SyncSummary counts the outcomes of a sync batch.
type SyncSummary struct {
	Inserted int `json:"synced_papers"`
	Updated  int `json:"updated_papers"`
	Skipped  int `json:"skipped_papers"`
	Failed   int `json:"failed_papers"`
	Total    int `json:"total_processed"`
}

// FetchRequest describes a single page fetch.
type FetchRequest struct {
	URL     string
	Headers http.Header
	// WaitSelector is honoured by rendering fetchers only.
	WaitSelector string
}

// FetchResponse is the captured result of a fetch.
type FetchResponse struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
	Rendered   bool
	// Ready is false when a rendering fetcher gave up waiting for WaitSelector.
	Ready bool
}
