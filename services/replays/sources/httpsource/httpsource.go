// Package httpsource reads a replay archive published over HTTP: an
// index.json document plus replay payloads resolved relative to it.
package httpsource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/lwgtools/replaydeck/services/replays/indexer"
	"github.com/lwgtools/replaydeck/services/replays/models"
)

// Source implements sources.Source over an HTTP archive base URL.
type Source struct {
	baseURL *url.URL
	client  *http.Client
}

// Name returns the source identifier.
func (s *Source) Name() string {
	return "http"
}

// Init configures the archive base URL. A trailing slash is required for
// relative resolution and is added when missing.
func (s *Source) Init(config map[string]any) error {
	raw, _ := config["url"].(string)
	if raw == "" {
		return fmt.Errorf("http source requires a url")
	}
	if raw[len(raw)-1] != '/' {
		raw += "/"
	}

	base, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("failed to parse archive url: %w", err)
	}

	s.baseURL = base
	s.client = &http.Client{Timeout: 30 * time.Second}
	return nil
}

// FetchIndex downloads and decodes the archive's index document.
func (s *Source) FetchIndex(ctx context.Context) (models.Index, error) {
	data, err := s.get(ctx, indexer.IndexFileName)
	if err != nil {
		return models.Index{}, fmt.Errorf("failed to fetch index: %w", err)
	}

	var index models.Index
	if err := json.Unmarshal(data, &index); err != nil {
		return models.Index{}, fmt.Errorf("failed to parse index: %w", err)
	}
	return index, nil
}

// FetchReplay downloads one replay payload by its catalog URL.
func (s *Source) FetchReplay(ctx context.Context, replayURL string) ([]byte, error) {
	data, err := s.get(ctx, replayURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch replay %s: %w", replayURL, err)
	}
	return data, nil
}

func (s *Source) get(ctx context.Context, rel string) ([]byte, error) {
	ref, err := url.Parse(rel)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", rel, err)
	}
	target := s.baseURL.ResolveReference(ref).String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("archive returned status %d for %s", resp.StatusCode, rel)
	}
	return io.ReadAll(resp.Body)
}
