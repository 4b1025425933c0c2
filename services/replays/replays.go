package replays

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/wailsapp/wails/v3/pkg/application"

	"github.com/lwgtools/replaydeck/services/config"
	"github.com/lwgtools/replaydeck/services/replays/apppaths"
	"github.com/lwgtools/replaydeck/services/replays/catalog"
	"github.com/lwgtools/replaydeck/services/replays/database"
	"github.com/lwgtools/replaydeck/services/replays/download"
	"github.com/lwgtools/replaydeck/services/replays/events"
	"github.com/lwgtools/replaydeck/services/replays/filter"
	"github.com/lwgtools/replaydeck/services/replays/models"
	"github.com/lwgtools/replaydeck/services/replays/preview"
	"github.com/lwgtools/replaydeck/services/replays/sources"
	"github.com/lwgtools/replaydeck/services/replays/sources/httpsource"
	"github.com/lwgtools/replaydeck/services/replays/sources/localsource"
	"github.com/lwgtools/replaydeck/services/replays/viewstate"
)

// ReplaysService is the backend of the replay browser: it owns the catalog,
// the filter engine, the download orchestrator and the preview cache, and
// exposes them to the frontend through Wails bindings.
type ReplaysService struct {
	db           *database.DB
	store        *catalog.Store
	engine       *filter.Engine
	registry     *sources.Registry
	orchestrator *download.Orchestrator
	previews     *preview.Fetcher
	events       *events.Events
	config       *config.Manager
	source       sources.Source
	route        string
	logger       *slog.Logger

	mu         sync.RWMutex
	collection models.CollectionInfo
}

// ReplaysServiceConfig holds service configuration
type ReplaysServiceConfig struct {
	DatabasePath string
	Logger       *slog.Logger
}

// NewReplaysService creates a new ReplaysService
func NewReplaysService(cfg ReplaysServiceConfig) (*ReplaysService, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.DatabasePath == "" {
		cfg.DatabasePath = apppaths.Database
	}

	// Ensure directories exist
	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	if err := os.MkdirAll(apppaths.Staging, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	// Initialize database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Load environment variables from .env file
	envPath := filepath.Join(".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			cfg.Logger.Warn("failed to load .env file", "error", err)
		}
	}

	store := catalog.NewStore(cfg.Logger)

	service := &ReplaysService{
		db:       db,
		store:    store,
		engine:   filter.NewEngine(store, cfg.Logger),
		registry: sources.NewRegistry(),
		events:   events.NewEvents(cfg.Logger),
		logger:   cfg.Logger,
	}

	service.engine.SetOnChange(service.onFilterChange)

	return service, nil
}

// onFilterChange relays every effective filter mutation to the frontend,
// together with the encoded state token for the address bar.
func (s *ReplaysService) onFilterChange(state models.FilterState, restored bool) {
	s.events.EmitFilterChange(models.FilterChange{
		State:    state,
		Token:    viewstate.Encode(state),
		Matches:  len(s.engine.FilteredView()),
		Restored: restored,
	})
}

// ServiceStartup runs when the app starts
func (s *ReplaysService) ServiceStartup(ctx context.Context, options application.ServiceOptions) error {
	s.route = "/replays"

	// Initialize config manager
	configPath := config.DefaultConfigPath()
	s.logger.Info("initializing config manager", "path", configPath)
	cfgManager, err := config.NewManager(configPath)
	if err != nil {
		s.logger.Error("failed to initialize config manager", "error", err)
		// Continue without config - we'll use defaults
	} else {
		s.config = cfgManager
	}

	archiveURL, archiveDir := s.archiveLocation()

	// Register archive sources
	if archiveDir != "" {
		local := localsource.New(s.logger)
		if err := s.registry.Register(local, map[string]any{"dir": archiveDir}); err != nil {
			return fmt.Errorf("failed to register local archive source: %w", err)
		}
		s.source = local
	} else {
		httpSource := &httpsource.Source{}
		if err := s.registry.Register(httpSource, map[string]any{"url": archiveURL}); err != nil {
			return fmt.Errorf("failed to register http archive source: %w", err)
		}
		s.source = httpSource
	}
	s.logger.Info("archive source selected", "source", s.source.Name())

	// Initialize download orchestrator
	s.orchestrator = download.NewOrchestrator(s.source, apppaths.Staging, s.logger)
	s.orchestrator.SetNotify(s.onDownloadProgress)
	s.orchestrator.SetSaveTrigger(s.exportArchive)

	// Initialize preview fetcher
	previewCfg := s.previewConfig()
	if previewCfg.Enabled {
		s.previews = preview.NewFetcher(previewCfg.URL, apppaths.PreviewCache, previewCfg.Workers, s.logger)
		s.previews.SetOnReady(func(mapName string) {
			s.events.EmitPreviewReady(mapName)
		})
		s.previews.Start()
	}

	// Initial catalog load
	go s.loadCatalog()

	return nil
}

// loadCatalog performs the startup catalog read. An unreachable or
// unparsable catalog disables browsing; the failure is reported to the
// frontend once rather than leaving a silently empty view.
func (s *ReplaysService) loadCatalog() {
	if err := s.RefreshCatalog(); err != nil {
		s.logger.Error("failed to load catalog", "error", err)
		s.events.EmitCatalogError(err.Error())
	}
}

// ServiceShutdown runs when the app shuts down
func (s *ReplaysService) ServiceShutdown(ctx context.Context) error {
	if s.previews != nil {
		s.previews.Stop()
	}
	s.orchestrator.Cancel()
	return s.db.Close()
}

// archiveLocation resolves the archive source, env overrides winning over the
// config file.
func (s *ReplaysService) archiveLocation() (archiveURL, archiveDir string) {
	cfg := config.Default()
	if s.config != nil {
		cfg = s.config.Get()
	}
	archiveURL = cfg.Archive.URL
	archiveDir = cfg.Archive.Dir
	if v := os.Getenv("REPLAYDECK_ARCHIVE_URL"); v != "" {
		archiveURL = v
		archiveDir = ""
	}
	if v := os.Getenv("REPLAYDECK_ARCHIVE_DIR"); v != "" {
		archiveDir = v
	}
	return archiveURL, archiveDir
}

func (s *ReplaysService) previewConfig() config.PreviewConfig {
	if s.config != nil {
		return s.config.Get().Previews
	}
	return config.Default().Previews
}

// RefreshCatalog re-reads the archive index and rebuilds the catalog.
func (s *ReplaysService) RefreshCatalog() error {
	s.logger.Info("loading catalog", "source", s.source.Name())

	index, err := s.source.FetchIndex(context.Background())
	if err != nil {
		return fmt.Errorf("failed to fetch index: %w", err)
	}

	dropped := s.store.Load(index.Replays)
	s.mu.Lock()
	s.collection = index.CollectionInfo
	s.mu.Unlock()
	s.engine.Reload()

	s.logger.Info("catalog loaded", "total", s.store.Len(), "dropped", dropped)
	s.events.EmitCatalogLoaded(models.CatalogLoaded{
		Total:          s.store.Len(),
		Dropped:        dropped,
		CollectionInfo: index.CollectionInfo,
	})

	// Warm the preview cache for every known map
	if s.previews != nil {
		for _, mapName := range s.store.FacetValues(models.FacetMap) {
			s.previews.Queue(mapName)
		}
	}

	return nil
}

// Replays returns the currently filtered, ordered replay list.
func (s *ReplaysService) Replays() []models.ReplayEntry {
	return s.engine.FilteredView()
}

// CollectionInfo returns the archive summary from the last index load.
func (s *ReplaysService) CollectionInfo() models.CollectionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collection
}

// FilterState returns the current filter constraints.
func (s *ReplaysService) FilterState() models.FilterState {
	return s.engine.State()
}

// SetFacet selects a value for one facet. An empty value clears it.
func (s *ReplaysService) SetFacet(name, value string) bool {
	return s.engine.SetFacet(name, value)
}

// ClearFacet removes the selection for one facet.
func (s *ReplaysService) ClearFacet(name string) bool {
	return s.engine.ClearFacet(name)
}

// SetSearch replaces the free-text search term.
func (s *ReplaysService) SetSearch(term string) bool {
	return s.engine.SetSearchTerm(term)
}

// ClearSearch removes the search term.
func (s *ReplaysService) ClearSearch() bool {
	return s.engine.ClearSearch()
}

// SetSort changes the ordering of the replay list.
func (s *ReplaysService) SetSort(field, order string) bool {
	return s.engine.SetSort(models.SortSpec{Field: field, Order: order})
}

// FacetValues returns every distinct value the catalog holds for a facet.
func (s *ReplaysService) FacetValues(name string) []string {
	return s.store.FacetValues(name)
}

// MatchingFacetValues returns the facet values still reachable under all
// other active constraints, for cascading facet dropdowns.
func (s *ReplaysService) MatchingFacetValues(name string) []string {
	return s.engine.MatchingFacetValues(name)
}

// StateToken encodes the current filter state for the address bar.
func (s *ReplaysService) StateToken() string {
	return viewstate.Encode(s.engine.State())
}

// ApplyStateToken restores the filter state from an encoded token, as used
// by history navigation. Malformed tokens fall back to the default state.
func (s *ReplaysService) ApplyStateToken(token string) bool {
	return s.engine.Replace(viewstate.Decode(token, s.logger))
}

// StartDownload begins downloading every replay in the current filtered view
// into a zip archive. Returns the job ID.
func (s *ReplaysService) StartDownload() (string, error) {
	return s.orchestrator.Start(s.engine.Snapshot())
}

// CancelDownload requests cancellation of the active download job.
func (s *ReplaysService) CancelDownload() {
	s.orchestrator.Cancel()
}

// DownloadStatus returns a snapshot of the active or last finished job.
func (s *ReplaysService) DownloadStatus() models.DownloadStatus {
	return s.orchestrator.Status()
}

// DownloadHistory returns past download jobs, newest first.
func (s *ReplaysService) DownloadHistory(limit int) ([]models.DownloadRecord, error) {
	return s.db.History(limit)
}

// QueuePreview requests a map preview thumbnail if previews are enabled.
func (s *ReplaysService) QueuePreview(mapName string) {
	if s.previews != nil {
		s.previews.Queue(mapName)
	}
}

// PreviewURL returns the HTTP URL a cached map preview is served under.
func (s *ReplaysService) PreviewURL(mapName string) (string, error) {
	if s.route == "" {
		return "", fmt.Errorf("service route not configured")
	}
	return fmt.Sprintf("%s/preview/%s", s.route, mapName), nil
}

// onDownloadProgress relays orchestrator progress to the frontend and keeps
// the persistent history in step with the job lifecycle.
func (s *ReplaysService) onDownloadProgress(status models.DownloadStatus) {
	s.events.EmitDownloadProgress(status)

	switch status.Phase {
	case models.DownloadPreparing:
		if err := s.db.RecordJobStart(status); err != nil {
			s.logger.Warn("failed to record download start", "error", err, "jobID", status.JobID)
		}
	case models.DownloadCompleted, models.DownloadCancelled, models.DownloadFailed:
		if err := s.db.RecordJobFinish(status); err != nil {
			s.logger.Warn("failed to record download finish", "error", err, "jobID", status.JobID)
		}
	}
}

// exportArchive moves a finalized archive out of the staging area into the
// user's download directory.
func (s *ReplaysService) exportArchive(archivePath, suggestedName string) {
	destDir := xdg.UserDirs.Download
	if destDir == "" {
		destDir = apppaths.Storage
	}

	dest := filepath.Join(destDir, suggestedName)
	if err := moveFile(archivePath, dest); err != nil {
		s.logger.Error("failed to export archive", "error", err, "dest", dest)
		return
	}
	s.logger.Info("archive exported", "path", dest)
}

// moveFile renames src to dest, falling back to copy+remove when the staging
// area and the destination live on different filesystems.
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		os.Remove(dest)
		return fmt.Errorf("failed to copy archive: %w", err)
	}
	return os.Remove(src)
}

// ServeHTTP implements http.Handler for serving replay payloads and map
// preview thumbnails to the frontend.
func (s *ReplaysService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Parse URL: /preview/{map} or /file/{replay path}
	path := strings.TrimPrefix(r.URL.Path, "/")
	kind, rest, ok := strings.Cut(path, "/")
	if !ok || rest == "" {
		http.Error(w, "Invalid URL", http.StatusBadRequest)
		return
	}

	switch kind {
	case "preview":
		if s.previews == nil {
			http.Error(w, "Previews disabled", http.StatusNotFound)
			return
		}
		data, err := s.previews.Thumbnail(rest)
		if err != nil {
			http.Error(w, "Preview not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)

	case "file":
		data, err := s.source.FetchReplay(r.Context(), rest)
		if err != nil {
			http.Error(w, "Replay not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(data)

	default:
		http.Error(w, "Invalid URL", http.StatusBadRequest)
	}
}
