package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/OFFIS-RIT/evidence-graph/internal/util"
	"github.com/OFFIS-RIT/evidence-graph/pkg/loader"

	"codeberg.org/readeck/go-readability/v2"
	"golang.org/x/net/html/charset"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTimeout  = 20 * time.Second
	defaultMaxBytes = 5 << 20
	userAgent       = "evidence-graph/1.0 (+https://github.com/OFFIS-RIT/evidence-graph)"
)

// ErrUnsupportedContent is returned for responses that are neither HTML nor
// plain text.
var ErrUnsupportedContent = errors.New("unsupported content type")

// WebPageLoader loads content from web URLs and extracts readable text.
// For HTML pages, it uses readability to extract the main content.
// Concurrent loads of the same URL share one request and results are cached
// for the lifetime of the loader.
type WebPageLoader struct {
	client   *http.Client
	maxBytes int64

	cache   map[string]loader.Page
	cacheMu sync.RWMutex
	group   singleflight.Group
}

// NewWebPageLoaderParams configures a WebPageLoader. Zero values select
// defaults.
type NewWebPageLoaderParams struct {
	Client   *http.Client
	Timeout  time.Duration
	MaxBytes int64
}

// NewWebPageLoader creates a new web loader.
func NewWebPageLoader(params NewWebPageLoaderParams) *WebPageLoader {
	client := params.Client
	if client == nil {
		timeout := params.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	maxBytes := params.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &WebPageLoader{
		client:   client,
		maxBytes: maxBytes,
		cache:    make(map[string]loader.Page),
	}
}

// LoadPage fetches rawURL and extracts readable text content.
// For HTML pages, it uses readability to extract the main article content;
// plain text is returned as is.
func (l *WebPageLoader) LoadPage(ctx context.Context, rawURL string) (loader.Page, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return loader.Page{}, fmt.Errorf("invalid page url %q", rawURL)
	}
	key := u.String()

	l.cacheMu.RLock()
	if cached, ok := l.cache[key]; ok {
		l.cacheMu.RUnlock()
		return cached, nil
	}
	l.cacheMu.RUnlock()

	result, err, _ := l.group.Do(key, func() (any, error) {
		l.cacheMu.RLock()
		if cached, ok := l.cache[key]; ok {
			l.cacheMu.RUnlock()
			return cached, nil
		}
		l.cacheMu.RUnlock()

		page, err := l.fetch(ctx, u)
		if err != nil {
			return loader.Page{}, err
		}

		l.cacheMu.Lock()
		l.cache[key] = page
		l.cacheMu.Unlock()

		return page, nil
	})

	return result.(loader.Page), err
}

func (l *WebPageLoader) fetch(ctx context.Context, u *url.URL) (loader.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return loader.Page{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,text/plain;q=0.9")

	resp, err := l.client.Do(req)
	if err != nil {
		return loader.Page{}, fmt.Errorf("failed to fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return loader.Page{}, fmt.Errorf("failed to fetch url: status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	body, err := charset.NewReader(io.LimitReader(resp.Body, l.maxBytes), contentType)
	if err != nil {
		return loader.Page{}, fmt.Errorf("failed to decode body: %w", err)
	}

	switch {
	case strings.Contains(contentType, "text/html"), contentType == "":
		article, err := readability.FromReader(body, u)
		if err != nil {
			return loader.Page{}, fmt.Errorf("failed to parse html: %w", err)
		}
		var builder strings.Builder
		if err := article.RenderText(&builder); err != nil {
			return loader.Page{}, fmt.Errorf("failed to render article text: %w", err)
		}
		return loader.Page{
			URL:     u.String(),
			Title:   strings.TrimSpace(article.Title()),
			Byline:  strings.TrimSpace(article.Byline()),
			Excerpt: strings.TrimSpace(article.Excerpt()),
			Text:    util.SanitizeText(strings.TrimSpace(builder.String())),
		}, nil
	case strings.Contains(contentType, "text/plain"):
		data, err := io.ReadAll(body)
		if err != nil {
			return loader.Page{}, err
		}
		return loader.Page{
			URL:  u.String(),
			Text: util.SanitizeText(strings.TrimSpace(string(data))),
		}, nil
	default:
		return loader.Page{}, fmt.Errorf("%w: %s", ErrUnsupportedContent, contentType)
	}
}
