// Package media turns a chat request (a video URL or free text) into a
// playable media descriptor.
package media

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrInvalidInput is returned for an empty query.
	ErrInvalidInput = errors.New("invalid media query")
	// ErrNotFound is returned when nothing matched the query.
	ErrNotFound = errors.New("media not found")
)

// Descriptor describes one resolved video.
type Descriptor struct {
	ID        string `json:"video_id"`
	Title     string `json:"title"`
	Channel   string `json:"channel"`
	Duration  string `json:"duration,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
	URL       string `json:"url"`
}

// Resolver resolves a query to a descriptor. A recognized video URL is looked
// up directly; anything else is searched and the first match wins.
type Resolver interface {
	Resolve(ctx context.Context, query string) (Descriptor, error)
}

// lookup is implemented by each backend.
type lookup interface {
	byID(ctx context.Context, id string) (Descriptor, error)
	search(ctx context.Context, query string) (Descriptor, error)
}

func resolve(ctx context.Context, l lookup, query string) (Descriptor, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Descriptor{}, ErrInvalidInput
	}
	if id, ok := ExtractVideoID(query); ok {
		return l.byID(ctx, id)
	}
	return l.search(ctx, query)
}

var videoIDRun = regexp.MustCompile(`^[A-Za-z0-9_-]+`)

// ExtractVideoID recognizes watch, short link, shorts and music URLs.
func ExtractVideoID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	markers := []string{
		"music.youtube.com/watch?v=",
		"youtube.com/watch?v=",
		"youtu.be/",
		"youtube.com/shorts/",
	}
	for _, m := range markers {
		i := strings.Index(s, m)
		if i < 0 {
			continue
		}
		if id := videoIDRun.FindString(s[i+len(m):]); id != "" {
			return id, true
		}
	}
	// watch URLs with v= not first in the query string
	if u, err := url.Parse(s); err == nil && strings.HasSuffix(u.Hostname(), "youtube.com") && u.Path == "/watch" {
		if id := videoIDRun.FindString(u.Query().Get("v")); id != "" {
			return id, true
		}
	}
	return "", false
}

// CanonicalURL is the watch URL for id.
func CanonicalURL(id string) string { return "https://www.youtube.com/watch?v=" + id }

// ThumbnailURL is the default still for id.
func ThumbnailURL(id string) string { return "https://img.youtube.com/vi/" + id + "/mqdefault.jpg" }

// FormatDuration renders seconds as m:ss, or h:mm:ss from one hour up.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h, m, s := seconds/3600, (seconds%3600)/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

var isoDuration = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseISODuration converts an ISO-8601 duration such as PT4M13S to seconds.
func ParseISODuration(d string) (int, bool) {
	m := isoDuration.FindStringSubmatch(d)
	if m == nil || d == "P" || d == "PT" {
		return 0, false
	}
	mult := []int{86400, 3600, 60, 1}
	total := 0
	for i, part := range m[1:] {
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0, false
		}
		total += n * mult[i]
	}
	return total, true
}

// New picks the Data API resolver when apiKey is set and the page scraper
// otherwise.
func New(ctx context.Context, apiKey string) (Resolver, error) {
	if apiKey != "" {
		return NewDataAPIResolver(ctx, apiKey)
	}
	return &ScrapeResolver{}, nil
}
