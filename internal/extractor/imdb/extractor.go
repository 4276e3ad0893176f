// Package imdb extracts structured records from IMDb calendar and title pages.
package imdb

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/moviefeed/release-crawler/internal/crawler"
)

var titlePath = regexp.MustCompile(`^/title/tt\d+`)

// Extractor parses IMDb markup into domain records. It holds the base URL so
// relative title links resolve to the stable identifiers stored in the queue.
type Extractor struct {
	baseURL string
	clock   crawler.Clock
}

// New creates an Extractor rooted at baseURL.
func New(baseURL string, clock crawler.Clock) *Extractor {
	return &Extractor{
		baseURL: strings.TrimRight(baseURL, "/"),
		clock:   clock,
	}
}

// ExtractListing returns the deduplicated absolute title URLs found in the
// calendar's main section. A page without that section yields an empty set,
// not an error.
func (e *Extractor) ExtractListing(content []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse listing page: %w", err)
	}

	seen := make(map[string]struct{})
	var urls []string
	section := doc.Find("section.ipc-page-section.ipc-page-section--base").First()
	section.Find("a[href^='/title/tt']").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		match := titlePath.FindString(href)
		if match == "" {
			return
		}
		full := e.baseURL + match + "/"
		if _, dup := seen[full]; dup {
			return
		}
		seen[full] = struct{}{}
		urls = append(urls, full)
	})
	return urls, nil
}

// ExtractDetail parses one title page into a MovieRecord.
func (e *Extractor) ExtractDetail(content []byte, sourceURL string) (crawler.MovieRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return crawler.MovieRecord{}, &crawler.ExtractionError{URL: sourceURL, Err: err}
	}

	title := strings.TrimSpace(doc.Find("h1").First().Text())
	if title == "" {
		return crawler.MovieRecord{}, &crawler.ExtractionError{
			URL: sourceURL,
			Err: errors.New("missing title heading"),
		}
	}

	now := e.clock.Now()
	record := crawler.MovieRecord{
		IMDbURL:     sourceURL,
		Title:       title,
		ReleaseDate: now.Truncate(24 * time.Hour),
		Kind:        "Movie",
		Country:     "USA",
		Description: strings.TrimSpace(doc.Find("span[data-testid='plot-l']").First().Text()),
		Cast:        extractCast(doc),
	}
	return record, nil
}

func extractCast(doc *goquery.Document) []crawler.CastCredit {
	var cast []crawler.CastCredit
	doc.Find("ul[data-testid='title-pc-list'] li[role='presentation']").Each(func(_ int, li *goquery.Selection) {
		a := li.Find("a[href^='/name/']").First()
		if a.Length() == 0 {
			return
		}
		href, _ := a.Attr("href")
		parts := strings.Split(href, "/")
		if len(parts) < 3 || parts[2] == "" {
			return
		}
		role := strings.TrimSpace(li.Find("span.ipc-metadata-list-item__label").First().Text())
		if role == "" {
			role = "Unknown"
		}
		cast = append(cast, crawler.CastCredit{
			IMDbID: parts[2],
			Name:   strings.TrimSpace(a.Text()),
			Role:   role,
		})
	})
	return cast
}
