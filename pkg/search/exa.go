package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/OFFIS-RIT/evidence-graph/internal/util"
	"github.com/OFFIS-RIT/evidence-graph/pkg/common"
	"github.com/OFFIS-RIT/evidence-graph/pkg/loader"
	"github.com/OFFIS-RIT/evidence-graph/pkg/logger"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultBaseURL       = "https://api.exa.ai"
	defaultMaxCharacters = 4000
	defaultTimeout       = 30 * time.Second
	defaultFetchParallel = 4
	snippetWords         = 60
)

// ExaClient retrieves web sources through the Exa search API. Results
// without text are optionally completed by fetching the page itself.
//
// An ExaClient should be created using NewExaClient.
type ExaClient struct {
	baseURL       string
	apiKey        string
	maxCharacters int
	client        *http.Client
	pages         loader.PageLoader
}

// NewExaClientParams configures an ExaClient.
//
// Pages may be nil, in which case sources Exa returned without text keep only
// their title.
type NewExaClientParams struct {
	BaseURL       string
	APIKey        string
	MaxCharacters int
	HTTPClient    *http.Client
	Pages         loader.PageLoader
}

// NewExaClient creates an ExaClient. Zero values select defaults.
func NewExaClient(params NewExaClientParams) *ExaClient {
	baseURL := strings.TrimRight(params.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	maxChars := params.MaxCharacters
	if maxChars <= 0 {
		maxChars = defaultMaxCharacters
	}
	client := params.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &ExaClient{
		baseURL:       baseURL,
		apiKey:        params.APIKey,
		maxCharacters: maxChars,
		client:        client,
		pages:         params.Pages,
	}
}

type exaTextOptions struct {
	MaxCharacters int `json:"maxCharacters"`
}

type exaContents struct {
	Text exaTextOptions `json:"text"`
}

type exaSearchRequest struct {
	Query      string      `json:"query"`
	NumResults int         `json:"numResults"`
	Contents   exaContents `json:"contents"`
}

type exaResult struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	URL           string   `json:"url"`
	Text          string   `json:"text"`
	Score         *float64 `json:"score"`
	Author        string   `json:"author"`
	PublishedDate string   `json:"publishedDate"`
}

type exaSearchResponse struct {
	Results []exaResult `json:"results"`
}

type exaErrorResponse struct {
	Error string `json:"error"`
}

// Search returns up to count sources for query. Sources get the ids S1..Sn
// in result order; answer blocks cite them by these ids.
func (c *ExaClient) Search(ctx context.Context, query string, count int) ([]common.Source, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%w: EXA_API_KEY is not set", common.ErrConfiguration)
	}
	if count <= 0 {
		return nil, nil
	}

	payload, err := json.Marshal(exaSearchRequest{
		Query:      query,
		NumResults: count,
		Contents:   exaContents{Text: exaTextOptions{MaxCharacters: c.maxCharacters}},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("exa: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: exa: %v", common.ErrCollaborator, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: exa: read body: %v", common.ErrCollaborator, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: exa rejected the api key (status %d)", common.ErrConfiguration, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr exaErrorResponse
		_ = json.Unmarshal(body, &apiErr)
		return nil, fmt.Errorf("%w: exa: status %d: %s", common.ErrCollaborator, resp.StatusCode, apiErr.Error)
	}

	var decoded exaSearchResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("%w: exa: decode: %v", common.ErrCollaborator, err)
	}

	sources := toSources(decoded.Results, count)
	c.enrich(ctx, sources)

	logger.Debug("[Search] Exa search finished",
		"results", len(sources),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return sources, nil
}

func toSources(results []exaResult, count int) []common.Source {
	if len(results) > count {
		results = results[:count]
	}
	sources := make([]common.Source, 0, len(results))
	for i, r := range results {
		score := 1 - float64(i)/float64(len(results))
		if r.Score != nil {
			score = *r.Score
		}
		text := util.SanitizeText(strings.TrimSpace(r.Text))
		title := strings.TrimSpace(r.Title)
		if title == "" {
			title = r.URL
		}
		sources = append(sources, common.Source{
			ID:            "S" + strconv.Itoa(i+1),
			Title:         title,
			URL:           r.URL,
			Snippet:       util.FirstNWords(text, snippetWords),
			FullText:      text,
			Score:         score,
			Author:        strings.TrimSpace(r.Author),
			PublishedDate: r.PublishedDate,
		})
	}
	return sources
}

// enrich fetches the page text of sources Exa returned without text. Failures
// leave the source as it is.
func (c *ExaClient) enrich(ctx context.Context, sources []common.Source) {
	if c.pages == nil {
		return
	}

	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(defaultFetchParallel)
	for i := range sources {
		if sources[i].FullText != "" || sources[i].URL == "" {
			continue
		}
		idx := i
		eg.Go(func() error {
			page, err := c.pages.LoadPage(ectx, sources[idx].URL)
			if err != nil {
				logger.Debug("[Search] Page fetch failed", "url", sources[idx].URL, "err", err)
				return nil
			}
			text := page.Text
			if len(text) > c.maxCharacters {
				text = strings.ToValidUTF8(text[:c.maxCharacters], "")
			}
			sources[idx].FullText = text
			sources[idx].Snippet = util.FirstNWords(text, snippetWords)
			if sources[idx].Title == sources[idx].URL && page.Title != "" {
				sources[idx].Title = page.Title
			}
			if sources[idx].Author == "" {
				sources[idx].Author = page.Byline
			}
			return nil
		})
	}
	_ = eg.Wait()
}
