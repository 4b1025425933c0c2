// Package preview maintains a cache of map preview thumbnails. Fetching
// happens on a background queue so browsing never waits on image downloads;
// every failure is soft.
package preview

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	xdraw "golang.org/x/image/draw"
)

// Thumbnail dimensions served to the replay table.
const (
	thumbWidth  = 320
	thumbHeight = 180
)

// OnReadyFunc is called after a thumbnail has been cached.
type OnReadyFunc func(mapName string)

// Fetcher downloads and scales map preview images on a worker queue with
// per-map cancellation.
type Fetcher struct {
	queue     chan string
	workers   int
	baseURL   string
	cacheDir  string
	client    *http.Client
	cancelMap map[string]context.CancelFunc
	onReady   OnReadyFunc
	mu        sync.RWMutex
	logger    *slog.Logger
	isRunning bool
	wg        sync.WaitGroup
}

// NewFetcher creates a preview fetcher. baseURL is the directory the map
// preview images are published under; an empty baseURL disables fetching.
func NewFetcher(baseURL, cacheDir string, workers int, logger *slog.Logger) *Fetcher {
	if workers <= 0 {
		workers = 2
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Fetcher{
		queue:     make(chan string, 100),
		workers:   workers,
		baseURL:   baseURL,
		cacheDir:  cacheDir,
		client:    &http.Client{Timeout: 30 * time.Second},
		cancelMap: make(map[string]context.CancelFunc),
		logger:    logger,
	}
}

// SetOnReady sets the callback invoked after a thumbnail lands in the cache.
func (f *Fetcher) SetOnReady(fn OnReadyFunc) {
	f.onReady = fn
}

// Start begins the fetcher workers.
func (f *Fetcher) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.isRunning || f.baseURL == "" {
		return
	}
	f.isRunning = true

	for i := 0; i < f.workers; i++ {
		f.wg.Add(1)
		go f.worker()
	}
	f.logger.Info("preview fetcher started", "workers", f.workers)
}

// Stop cancels active fetches and shuts the workers down.
func (f *Fetcher) Stop() {
	f.mu.Lock()
	if !f.isRunning {
		f.mu.Unlock()
		return
	}
	f.isRunning = false
	for _, cancel := range f.cancelMap {
		cancel()
	}
	f.cancelMap = make(map[string]context.CancelFunc)
	f.mu.Unlock()

	close(f.queue)
	f.wg.Wait()
}

// Queue requests a thumbnail for a map. Already-cached maps and a stopped or
// disabled fetcher are silently ignored.
func (f *Fetcher) Queue(mapName string) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.isRunning || mapName == "" {
		return
	}
	if _, err := os.Stat(f.CachePath(mapName)); err == nil {
		return
	}

	select {
	case f.queue <- mapName:
	default:
		f.logger.Warn("preview queue full, dropping request", "map", mapName)
	}
}

// Cancel cancels an active fetch for a map.
func (f *Fetcher) Cancel(mapName string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if cancel, ok := f.cancelMap[mapName]; ok {
		cancel()
		delete(f.cancelMap, mapName)
	}
}

// CachePath returns where a map's thumbnail lives in the cache.
func (f *Fetcher) CachePath(mapName string) string {
	return filepath.Join(f.cacheDir, url.PathEscape(mapName)+".png")
}

// Thumbnail returns the cached thumbnail bytes for a map.
func (f *Fetcher) Thumbnail(mapName string) ([]byte, error) {
	data, err := os.ReadFile(f.CachePath(mapName))
	if err != nil {
		return nil, fmt.Errorf("preview not cached for %s: %w", mapName, err)
	}
	return data, nil
}

func (f *Fetcher) worker() {
	defer f.wg.Done()
	for mapName := range f.queue {
		f.process(mapName)
	}
}

func (f *Fetcher) process(mapName string) {
	ctx, cancel := context.WithCancel(context.Background())

	f.mu.Lock()
	f.cancelMap[mapName] = cancel
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		delete(f.cancelMap, mapName)
		f.mu.Unlock()
		cancel()
	}()

	if err := f.fetchAndCache(ctx, mapName); err != nil {
		f.logger.Warn("failed to cache map preview", "map", mapName, "error", err)
		return
	}

	if f.onReady != nil {
		f.onReady(mapName)
	}
}

func (f *Fetcher) fetchAndCache(ctx context.Context, mapName string) error {
	src := f.baseURL
	if src[len(src)-1] != '/' {
		src += "/"
	}
	src += url.PathEscape(mapName) + ".png"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch preview: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("preview source returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read preview: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to decode preview image: %w", err)
	}

	thumb := scaleToFit(img, thumbWidth, thumbHeight)

	var buf bytes.Buffer
	if err := png.Encode(&buf, thumb); err != nil {
		return fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	if err := os.MkdirAll(f.cacheDir, 0755); err != nil {
		return fmt.Errorf("failed to create preview cache: %w", err)
	}
	if err := os.WriteFile(f.CachePath(mapName), buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write thumbnail: %w", err)
	}
	return nil
}

// scaleToFit scales an image down to fit inside the target box, preserving
// aspect ratio. Images already small enough pass through unscaled.
func scaleToFit(img image.Image, maxWidth, maxHeight int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxWidth && h <= maxHeight {
		return img
	}

	scale := float64(maxWidth) / float64(w)
	if s := float64(maxHeight) / float64(h); s < scale {
		scale = s
	}
	dst := image.NewRGBA(image.Rect(0, 0, int(float64(w)*scale), int(float64(h)*scale)))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)
	return dst
}
