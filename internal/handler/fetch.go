package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/mattjoyce/taskgate/internal/fsutil"
	"github.com/mattjoyce/taskgate/internal/task"
)

const (
	defaultFetchTimeout  = 10 * time.Second
	defaultFetchMaxBytes = 10 << 20
	defaultUserAgent     = "taskgate/1.0"
)

// fetcher performs bounded GET requests for api_fetch and web_scraping.
type fetcher struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
}

func newFetcher(deps Deps) *fetcher {
	f := &fetcher{client: deps.HTTP, maxBytes: deps.Fetch.MaxBodyBytes, userAgent: deps.Fetch.UserAgent}
	if f.client == nil {
		f.client = &http.Client{Timeout: defaultFetchTimeout}
	}
	if f.maxBytes <= 0 {
		f.maxBytes = defaultFetchMaxBytes
	}
	if f.userAgent == "" {
		f.userAgent = defaultUserAgent
	}
	return f
}

// get returns the body of a 2xx response. Larger bodies than maxBytes fail.
func (f *fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not an http(s) URL", task.ErrInvalidParameter, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u.Redacted(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", u.Redacted(), resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u.Redacted(), err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("fetch %s: body exceeds %d bytes", u.Redacted(), f.maxBytes)
	}
	return body, nil
}

type apiFetch struct {
	fetcher *fetcher
}

func (a *apiFetch) Handle(ctx context.Context, d task.Descriptor) (string, error) {
	apiURL, err := d.String("api_url")
	if err != nil {
		return "", err
	}
	out, err := d.String(task.ParamOutput)
	if err != nil {
		return "", err
	}
	body, err := a.fetcher.get(ctx, apiURL)
	if err != nil {
		return "", err
	}
	if err := fsutil.AtomicWrite(out, body); err != nil {
		return "", err
	}
	return SuccessMessage, nil
}

type webScrape struct {
	fetcher *fetcher
}

// Handle writes the text of every element matching selector, one per line.
func (s *webScrape) Handle(ctx context.Context, d task.Descriptor) (string, error) {
	pageURL, err := d.String("url")
	if err != nil {
		return "", err
	}
	selector, err := d.String("selector")
	if err != nil {
		return "", err
	}
	out, err := d.String(task.ParamOutput)
	if err != nil {
		return "", err
	}

	body, err := s.fetcher.get(ctx, pageURL)
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var texts []string
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		texts = append(texts, strings.TrimSpace(sel.Text()))
	})
	if err := fsutil.AtomicWrite(out, []byte(strings.Join(texts, "\n"))); err != nil {
		return "", err
	}
	return SuccessMessage, nil
}
