// Package events bridges service-side state changes to the frontend via
// Wails events. Emission is best-effort: with no running application (unit
// tests) the emit is skipped.
package events

import (
	"log/slog"

	"github.com/wailsapp/wails/v3/pkg/application"

	"github.com/lwgtools/replaydeck/services/replays/models"
)

// Event names shared with the frontend.
const (
	CatalogLoaded    = "catalog:loaded"
	CatalogFailed    = "catalog:error"
	FiltersChanged   = "filters:changed"
	DownloadProgress = "download:progress"
	PreviewReady     = "preview:ready"
)

// EmitFunc delivers one named event payload.
type EmitFunc func(name string, payload any)

type Events struct {
	logger *slog.Logger
	emit   EmitFunc
}

func NewEvents(logger *slog.Logger) *Events {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Events{logger: logger}
	e.emit = func(name string, payload any) {
		if app := application.Get(); app != nil {
			app.Event.Emit(name, payload)
		}
	}
	return e
}

// SetEmitter replaces the default Wails emitter.
func (e *Events) SetEmitter(emit EmitFunc) {
	e.emit = emit
}

// EmitCatalogLoaded announces that the catalog is ready to browse.
func (e *Events) EmitCatalogLoaded(payload models.CatalogLoaded) {
	e.emit(CatalogLoaded, payload)
	e.logger.Info("catalog ready", "total", payload.Total, "dropped", payload.Dropped)
}

// EmitCatalogError reports that the catalog could not be loaded at all and
// browsing is disabled.
func (e *Events) EmitCatalogError(message string) {
	e.emit(CatalogFailed, models.CatalogError{Message: message})
}

// EmitFilterChange publishes the new filter state and its address token. The
// frontend pushes Token into browser history for non-restored changes and
// resyncs its controls for restored ones.
func (e *Events) EmitFilterChange(change models.FilterChange) {
	e.emit(FiltersChanged, change)
}

// EmitDownloadProgress publishes a download status snapshot.
func (e *Events) EmitDownloadProgress(status models.DownloadStatus) {
	e.emit(DownloadProgress, status)
}

// EmitPreviewReady announces a cached map preview thumbnail.
func (e *Events) EmitPreviewReady(mapName string) {
	e.emit(PreviewReady, models.PreviewReady{Map: mapName})
}
