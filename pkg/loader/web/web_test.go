package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

const articleHTML = `<!DOCTYPE html>
<html><head><title>Goroutines explained</title></head>
<body>
<nav><a href="/">Home</a></nav>
<article>
<h1>Goroutines explained</h1>
<p>Goroutines are functions that run concurrently with other functions, and they are multiplexed onto a small number of operating system threads by the runtime scheduler.</p>
<p>Because a goroutine starts with a small stack that grows on demand, a program can create hundreds of thousands of them without exhausting memory, which is not possible with threads.</p>
<p>Channels connect goroutines, allowing one goroutine to send values to another, and they synchronise the two sides when the channel is unbuffered.</p>
</article>
</body></html>`

func newTestServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/article", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(articleHTML))
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("  plain text body\x00  "))
	})
	mux.HandleFunc("/latin1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=iso-8859-1")
		_, _ = w.Write([]byte("caf\xe9 cr\xe8me"))
	})
	mux.HandleFunc("/binary", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLoadPageExtractsArticle(t *testing.T) {
	var hits atomic.Int32
	srv := newTestServer(t, &hits)
	l := NewWebPageLoader(NewWebPageLoaderParams{})

	page, err := l.LoadPage(context.Background(), srv.URL+"/article")
	if err != nil {
		t.Fatalf("LoadPage: %v", err)
	}
	if page.Title != "Goroutines explained" {
		t.Fatalf("unexpected title %q", page.Title)
	}
	if !strings.Contains(page.Text, "multiplexed onto a small number") {
		t.Fatalf("article text missing, got %q", page.Text)
	}
}

func TestLoadPageCachesAndDedupes(t *testing.T) {
	var hits atomic.Int32
	srv := newTestServer(t, &hits)
	l := NewWebPageLoader(NewWebPageLoaderParams{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.LoadPage(context.Background(), srv.URL+"/article"); err != nil {
				t.Errorf("LoadPage: %v", err)
			}
		}()
	}
	wg.Wait()

	if _, err := l.LoadPage(context.Background(), srv.URL+"/article"); err != nil {
		t.Fatalf("LoadPage: %v", err)
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("expected a single fetch, got %d", n)
	}
}

func TestLoadPagePlainText(t *testing.T) {
	var hits atomic.Int32
	srv := newTestServer(t, &hits)
	l := NewWebPageLoader(NewWebPageLoaderParams{})

	page, err := l.LoadPage(context.Background(), srv.URL+"/plain")
	if err != nil {
		t.Fatalf("LoadPage: %v", err)
	}
	if page.Text != "plain text body" {
		t.Fatalf("unexpected text %q", page.Text)
	}
}

func TestLoadPageDecodesCharset(t *testing.T) {
	var hits atomic.Int32
	srv := newTestServer(t, &hits)
	l := NewWebPageLoader(NewWebPageLoaderParams{})

	page, err := l.LoadPage(context.Background(), srv.URL+"/latin1")
	if err != nil {
		t.Fatalf("LoadPage: %v", err)
	}
	if page.Text != "café crème" {
		t.Fatalf("unexpected text %q", page.Text)
	}
}

func TestLoadPageErrors(t *testing.T) {
	var hits atomic.Int32
	srv := newTestServer(t, &hits)
	l := NewWebPageLoader(NewWebPageLoaderParams{})

	tests := []struct {
		name string
		url  string
		is   error
	}{
		{name: "unsupported", url: srv.URL + "/binary", is: ErrUnsupportedContent},
		{name: "not found", url: srv.URL + "/missing"},
		{name: "bad scheme", url: "ftp://example.com/file"},
		{name: "garbage", url: "::::"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := l.LoadPage(context.Background(), tc.url)
			if err == nil {
				t.Fatal("expected error")
			}
			if tc.is != nil && !errors.Is(err, tc.is) {
				t.Fatalf("expected %v, got %v", tc.is, err)
			}
		})
	}
}
