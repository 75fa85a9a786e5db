package journals

import (
	"github.com/JakeFAU/journal-tracker/internal/extract"
	"github.com/JakeFAU/journal-tracker/internal/source"
	"github.com/JakeFAU/journal-tracker/internal/tracker"
)

// oupAuthors reads Oxford Academic bylines, whose separators are inline elements.
var oupAuthors = []extract.AuthorRule{
	{Selector: ".al-authors-list", Delimiters: []string{".al-author-delim"}},
	{ItemSelector: ".al-author-name"},
}

func aos() Entry {
	const papers = "https://imstat.org/journals-and-publications/annals-of-statistics/annals-of-statistics-future-papers/"
	link := `a[href*="e-publications.org"]`
	return Entry{
		Journal: tracker.Journal{
			Name:         "Annals of Statistics",
			Abbreviation: "AOS",
			URL:          "https://imstat.org/journals-and-publications/annals-of-statistics/",
			PapersURL:    papers,
		},
		// Future papers are listed oldest first.
		Static: &source.Listing{
			URL:          papers,
			ItemSelector: "tr:has(" + link + ")",
			Reverse:      true,
		},
		CrossrefTitle: "The Annals of Statistics",
		Rules: extract.Rules{
			Title:   extract.Field{{Selector: link}},
			URL:     extract.Field{{Selector: link, Attr: "href"}},
			Authors: []extract.AuthorRule{{Selector: "td:nth-of-type(2)"}},
		},
	}
}

func jasa() Entry {
	listing := source.Listing{
		URL:          "https://www.tandfonline.com/action/showAxaArticles?journalCode=uasa20&startPage={page}",
		FirstPage:    0,
		MaxPages:     3,
		ItemSelector: ".tocArticleEntry",
		WaitSelector: ".tocArticleEntry",
		Referer:      "https://www.tandfonline.com/journals/uasa20",
	}
	browser := listing
	return Entry{
		Journal: tracker.Journal{
			Name:         "Journal of the American Statistical Association",
			Abbreviation: "JASA",
			URL:          "https://www.tandfonline.com/journals/uasa20",
			PapersURL:    "https://www.tandfonline.com/action/showAxaArticles?journalCode=uasa20",
		},
		Static:  &listing,
		Browser: &browser,
		Feeds: []string{
			"https://www.tandfonline.com/action/showFeed?type=etoc&feed=rss&jc=uasa20",
			"https://www.tandfonline.com/feed/rss/uasa20",
			"https://www.tandfonline.com/loi/uasa20/rss",
		},
		CrossrefTitle: "Journal of the American Statistical Association",
		Rules: extract.Rules{
			Title: extract.Field{{Selector: ".hlFld-Title"}, {Selector: ".art_title"}},
			URL: extract.Field{
				{Selector: "a:has(.hlFld-Title)", Attr: "href"},
				{Selector: ".art_title a", Attr: "href"},
			},
			PDFURL: extract.Field{{Selector: `a[href*="/doi/pdf/"]`, Attr: "href"}},
			Authors: []extract.AuthorRule{
				{ItemSelector: ".hlFld-ContribAuthor"},
				{ItemSelector: ".entryAuthor"},
			},
			PublicationDate: extract.Field{{Selector: ".date", TrimPrefix: "Published online:"}},
			Section:         extract.Field{{Selector: ".article-type"}},
			DateLayouts:     []string{"2 Jan 2006", "02 Jan 2006"},
		},
	}
}

func jrssb() Entry {
	const papers = "https://academic.oup.com/jrsssb/advance-articles"
	return Entry{
		Journal: tracker.Journal{
			Name:         "Journal of the Royal Statistical Society Series B",
			Abbreviation: "JRSSB",
			URL:          "https://academic.oup.com/jrsssb",
			PapersURL:    papers,
		},
		Static: &source.Listing{URL: papers, ItemSelector: ".al-article-items"},
		Browser: &source.Listing{
			URL:          papers,
			ItemSelector: ".al-article-items",
			WaitSelector: ".al-article-item, .al-article-box",
		},
		Feeds: []string{
			"https://academic.oup.com/rss/site_5463/3135.xml",
			"https://academic.oup.com/jrsssb/rss",
		},
		CrossrefTitle: "Journal of the Royal Statistical Society Series B: Statistical Methodology",
		Rules: extract.Rules{
			Title:           extract.Field{{Selector: ".al-title a"}},
			URL:             extract.Field{{Selector: ".al-title a", Attr: "href"}},
			Authors:         oupAuthors,
			PublicationDate: extract.Field{{Selector: ".ww-citation-date-wrap .citation-date"}, {Selector: ".citation-date"}},
			Section:         extract.Field{{Selector: `.al-article-pubinfo:contains("Section:") a`}},
			Citation:        extract.Field{{Selector: ".al-citation-list"}},
			Abstract:        extract.Field{{Selector: ".al-preview"}},
			DateLayouts:     []string{"2 January 2006", "January 2, 2006"},
		},
	}
}

func biometrika() Entry {
	const papers = "https://academic.oup.com/biomet/advance-articles"
	return Entry{
		Journal: tracker.Journal{
			Name:         "Biometrika",
			Abbreviation: "Biometrika",
			URL:          "https://academic.oup.com/biomet",
			PapersURL:    papers,
		},
		Static: &source.Listing{URL: papers, ItemSelector: "li.al-article-box"},
		Browser: &source.Listing{
			URL:          papers,
			ItemSelector: "li.al-article-box",
			WaitSelector: ".al-article-box",
		},
		Feeds: []string{
			"https://academic.oup.com/rss/site_5414/advanceaccess_3094.xml",
			"https://academic.oup.com/biomet/rss",
		},
		CrossrefTitle: "Biometrika",
		Rules: extract.Rules{
			Title:           extract.Field{{Selector: "h5 a"}, {Selector: "h4 a"}},
			URL:             extract.Field{{Selector: "h5 a", Attr: "href"}, {Selector: "h4 a", Attr: "href"}},
			Authors:         oupAuthors,
			PublicationDate: extract.Field{{Selector: "span.al-pub-date"}, {Selector: ".citation-date"}},
			Section:         extract.Field{{Selector: "span.sri-type"}},
			Citation:        extract.Field{{Selector: ".al-citation-list"}},
			Abstract:        extract.Field{{Selector: "div.al-preview"}, {Selector: "div.abstract"}},
			DateLayouts:     []string{"2 January 2006", "January 2, 2006"},
		},
	}
}

func jmlr() Entry {
	return Entry{
		Journal: tracker.Journal{
			Name:         "Journal of Machine Learning Research",
			Abbreviation: "JMLR",
			URL:          "https://www.jmlr.org/",
			PapersURL:    "https://www.jmlr.org/",
		},
		Static: &source.Listing{URL: "https://www.jmlr.org/", ItemSelector: "dt", Sibling: "dd"},
		Rules: extract.Rules{
			Title:   extract.Field{{Selector: "dt"}},
			URL:     extract.Field{{Selector: `dd a:contains("abs")`, Attr: "href"}},
			PDFURL:  extract.Field{{Selector: `dd a:contains("pdf")`, Attr: "href"}},
			BibURL:  extract.Field{{Selector: `dd a:contains("bib")`, Attr: "href"}},
			Authors: []extract.AuthorRule{{Selector: "dd b i"}, {Selector: "dd", Pattern: `^(.*?),\s*\d{4}\.`}},
		},
		Enrich:         true,
		EnrichAbstract: extract.Field{{Selector: "#abstract"}, {Selector: "h3 + p"}},
	}
}
