// Package source retrieves the hosted signal list.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/newthinker/nextsignal/internal/config"
	"github.com/newthinker/nextsignal/internal/core"
	"github.com/newthinker/nextsignal/internal/validate"
)

// maxPayload caps the signal list body; the hosted file is a few KB.
const maxPayload = 4 << 20

// Fetcher retrieves one signal set per call.
type Fetcher interface {
	Fetch(ctx context.Context) (core.SignalSet, error)
}

// HTTPFetcher reads the signal list from a static JSON URL.
type HTTPFetcher struct {
	client *http.Client
	url    string
	strict bool
}

// New creates an HTTPFetcher from the source config.
func New(cfg config.SourceConfig) *HTTPFetcher {
	return NewWithClient(cfg.URL, &http.Client{Timeout: cfg.Timeout}, cfg.Strict)
}

// NewWithClient creates an HTTPFetcher using the given client (useful for testing).
func NewWithClient(url string, client *http.Client, strict bool) *HTTPFetcher {
	return &HTTPFetcher{
		client: client,
		url:    url,
		strict: strict,
	}
}

// URL returns the source address.
func (f *HTTPFetcher) URL() string {
	return f.url
}

// Fetch performs a single GET. It never retries.
func (f *HTTPFetcher) Fetch(ctx context.Context) (core.SignalSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return core.SignalSet{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return core.SignalSet{}, fmt.Errorf("fetching signals: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return core.SignalSet{}, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayload))
	if err != nil {
		return core.SignalSet{}, fmt.Errorf("reading body: %w", err)
	}

	set, err := Decode(body)
	if err != nil {
		return core.SignalSet{}, err
	}

	if f.strict {
		if err := check(ctx, set); err != nil {
			return core.SignalSet{}, err
		}
	}

	return set, nil
}

// check validates every signal's fields and time format.
func check(ctx context.Context, set core.SignalSet) error {
	if err := validate.Struct(ctx, set); err != nil {
		return fmt.Errorf("validating signals: %w", err)
	}
	for _, group := range [][]core.Signal{set.Live, set.OTC} {
		for _, s := range group {
			if _, err := core.ParseClock(s.Time); err != nil {
				return fmt.Errorf("signal %s: %w", s.Name, err)
			}
		}
	}
	return nil
}

// StaticFetcher returns a fixed set; used by the CLI when a local file is given.
type StaticFetcher struct {
	Set core.SignalSet
	Err error
}

func (s StaticFetcher) Fetch(ctx context.Context) (core.SignalSet, error) {
	if s.Err != nil {
		return core.SignalSet{}, s.Err
	}
	return s.Set.Clone(), nil
}

// Decode parses a signal list payload, as the HTTP fetcher does.
func Decode(data []byte) (core.SignalSet, error) {
	var set core.SignalSet
	if err := sonic.Unmarshal(data, &set); err != nil {
		return core.SignalSet{}, fmt.Errorf("decoding signals: %w", err)
	}
	return set.Normalize(), nil
}
