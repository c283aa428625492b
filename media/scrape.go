package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/onnwee/chatdeck/telemetry"
)

const (
	defaultScrapeBase = "https://www.youtube.com"
	scrapeUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	maxPageBytes      = 4 << 20
)

// ScrapeResolver resolves without an API key by reading the public watch and
// results pages.
type ScrapeResolver struct {
	BaseURL    string
	HTTPClient *http.Client
}

var (
	authorRe     = regexp.MustCompile(`"author":"((?:[^"\\]|\\.)*)"`)
	lengthRe     = regexp.MustCompile(`"lengthSeconds":"(\d+)"`)
	searchIDRe   = regexp.MustCompile(`"videoId":"([A-Za-z0-9_-]{11})"`)
	watchLinkRe  = regexp.MustCompile(`/watch\?v=([A-Za-z0-9_-]{11})`)
	unicodeEscRe = regexp.MustCompile(`\\u([0-9a-fA-F]{4})`)
)

// Resolve implements Resolver.
func (r *ScrapeResolver) Resolve(ctx context.Context, query string) (Descriptor, error) {
	ctx, span := telemetry.StartSpan(ctx, "media", "media.resolve.scrape")
	defer span.End()
	d, err := resolve(ctx, r, query)
	if err != nil {
		telemetry.RecordError(span, err)
		return d, err
	}
	telemetry.SetSpanSuccess(span)
	return d, nil
}

func (r *ScrapeResolver) base() string {
	if r.BaseURL != "" {
		return strings.TrimRight(r.BaseURL, "/")
	}
	return defaultScrapeBase
}

func (r *ScrapeResolver) client() *http.Client {
	if r.HTTPClient != nil {
		return r.HTTPClient
	}
	return &http.Client{Timeout: 15 * time.Second}
}

func (r *ScrapeResolver) fetch(ctx context.Context, u string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", scrapeUserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	resp, err := r.client().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: HTTP %d", u, resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *ScrapeResolver) byID(ctx context.Context, id string) (Descriptor, error) {
	page, err := r.fetch(ctx, r.base()+"/watch?v="+url.QueryEscape(id))
	if err != nil {
		return Descriptor{}, fmt.Errorf("fetch watch page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return Descriptor{}, fmt.Errorf("parse watch page: %w", err)
	}

	d := Descriptor{ID: id, URL: CanonicalURL(id), Thumbnail: "https://img.youtube.com/vi/" + id + "/maxresdefault.jpg"}
	d.Title, _ = doc.Find(`meta[property="og:title"]`).Attr("content")
	if d.Title == "" {
		d.Title = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(doc.Find("title").First().Text()), "- YouTube"))
	}
	if d.Title == "" {
		d.Title = "Unknown Title"
	}
	d.Channel, _ = doc.Find(`link[itemprop="name"]`).First().Attr("content")
	if d.Channel == "" {
		if m := authorRe.FindStringSubmatch(page); m != nil {
			d.Channel = decodeUnicodeEscapes(m[1])
		}
	}
	if d.Channel == "" {
		d.Channel = "Unknown Channel"
	}
	if m := lengthRe.FindStringSubmatch(page); m != nil {
		if secs, err := strconv.Atoi(m[1]); err == nil {
			d.Duration = FormatDuration(secs)
		}
	}
	return d, nil
}

func (r *ScrapeResolver) search(ctx context.Context, query string) (Descriptor, error) {
	page, err := r.fetch(ctx, r.base()+"/results?search_query="+url.QueryEscape(query))
	if err != nil {
		return Descriptor{}, fmt.Errorf("fetch results page: %w", err)
	}
	id := firstResultID(page)
	if id == "" {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrNotFound, query)
	}
	return r.byID(ctx, id)
}

// firstResultID prefers the embedded initial data and falls back to the
// first watch link in the markup.
func firstResultID(page string) string {
	if m := searchIDRe.FindStringSubmatch(page); m != nil {
		return m[1]
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err == nil {
		var id string
		doc.Find(`a[href*="/watch?v="]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			href, _ := sel.Attr("href")
			if m := watchLinkRe.FindStringSubmatch(href); m != nil {
				id = m[1]
				return false
			}
			return true
		})
		if id != "" {
			return id
		}
	}
	if m := watchLinkRe.FindStringSubmatch(page); m != nil {
		return m[1]
	}
	return ""
}

func decodeUnicodeEscapes(s string) string {
	return unicodeEscRe.ReplaceAllStringFunc(s, func(esc string) string {
		n, err := strconv.ParseUint(esc[2:], 16, 32)
		if err != nil {
			return esc
		}
		return string(rune(n))
	})
}
