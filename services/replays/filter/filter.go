// Package filter reduces the catalog into a filtered view from a set of
// independent facet constraints and a free-text search term.
package filter

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/lwgtools/replaydeck/services/replays/catalog"
	"github.com/lwgtools/replaydeck/services/replays/models"
)

// ChangeFunc is invoked exactly once per effective state mutation, after the
// cached view has been invalidated. Restored marks atomic replacements that
// came from history navigation.
type ChangeFunc func(state models.FilterState, restored bool)

// Engine holds the current filter constraints and computes filtered views on
// demand. The view is cached until the next mutation.
type Engine struct {
	mu       sync.Mutex
	store    *catalog.Store
	facets   map[string]string
	search   string
	sortSpec models.SortSpec
	view     []models.ReplayEntry
	dirty    bool
	onChange ChangeFunc
	logger   *slog.Logger
}

// NewEngine creates an engine over the given store with no constraints set.
func NewEngine(store *catalog.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  store,
		facets: make(map[string]string),
		dirty:  true,
		logger: logger,
	}
}

// SetOnChange registers the mutation listener. Must be called before the
// engine is handed to concurrent callers.
func (e *Engine) SetOnChange(fn ChangeFunc) {
	e.onChange = fn
}

// SetFacet replaces the constraint for one facet. An empty value clears it.
// Setting the already-current value is a no-op and reports false.
func (e *Engine) SetFacet(name, value string) bool {
	e.mu.Lock()
	if e.facets[name] == value {
		e.mu.Unlock()
		return false
	}
	if value == "" {
		delete(e.facets, name)
	} else {
		e.facets[name] = value
	}
	e.dirty = true
	state := e.stateLocked()
	e.mu.Unlock()

	e.logger.Debug("facet changed", "facet", name, "value", value)
	e.notify(state, false)
	return true
}

// ClearFacet removes the constraint for one facet.
func (e *Engine) ClearFacet(name string) bool {
	return e.SetFacet(name, "")
}

// SetSearchTerm replaces the search text. The term is trimmed but otherwise
// stored as typed; case folding happens at match time so the active-filter
// display can show the user's own casing.
func (e *Engine) SetSearchTerm(term string) bool {
	term = strings.TrimSpace(term)

	e.mu.Lock()
	if e.search == term {
		e.mu.Unlock()
		return false
	}
	e.search = term
	e.dirty = true
	state := e.stateLocked()
	e.mu.Unlock()

	e.notify(state, false)
	return true
}

// ClearSearch removes the search term.
func (e *Engine) ClearSearch() bool {
	return e.SetSearchTerm("")
}

// SetSort changes the view ordering. Sorting is stable: entries with equal
// keys keep the catalog's relative order.
func (e *Engine) SetSort(spec models.SortSpec) bool {
	e.mu.Lock()
	if e.sortSpec == spec {
		e.mu.Unlock()
		return false
	}
	e.sortSpec = spec
	e.dirty = true
	state := e.stateLocked()
	e.mu.Unlock()

	e.notify(state, false)
	return true
}

// Replace swaps in a whole state at once, as a single mutation with a single
// notification. Used when restoring state from history navigation.
func (e *Engine) Replace(state models.FilterState) bool {
	state = state.Clone()
	state.Search = strings.TrimSpace(state.Search)

	e.mu.Lock()
	if e.stateLocked().Equal(state) {
		e.mu.Unlock()
		return false
	}
	e.facets = make(map[string]string, len(state.Facets))
	for k, v := range state.Facets {
		if v != "" {
			e.facets[k] = v
		}
	}
	e.search = state.Search
	e.dirty = true
	applied := e.stateLocked()
	e.mu.Unlock()

	e.notify(applied, true)
	return true
}

// Reload invalidates the cached view after the underlying catalog changed,
// keeping the constraints as they are. Listeners are notified so match
// counts refresh.
func (e *Engine) Reload() {
	e.mu.Lock()
	e.dirty = true
	state := e.stateLocked()
	e.mu.Unlock()

	e.notify(state, false)
}

// State returns a copy of the current constraints.
func (e *Engine) State() models.FilterState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

// FilteredView returns the ordered subsequence of catalog entries satisfying
// every active constraint. The result is cached until the next mutation and
// must be treated as read-only; use Snapshot for a copy that survives later
// filter edits.
func (e *Engine) FilteredView() []models.ReplayEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewLocked()
}

// Snapshot returns an independent copy of the current filtered view, for
// consumers (the download orchestrator) that must not observe later filter
// changes.
func (e *Engine) Snapshot() []models.ReplayEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	view := e.viewLocked()
	out := make([]models.ReplayEntry, len(view))
	copy(out, view)
	return out
}

// MatchingFacetValues returns the still-reachable values for a facet given
// all other active constraints: the constraint on name itself is ignored so
// cascading dropdowns do not collapse to the current selection.
func (e *Engine) MatchingFacetValues(name string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	seen := make(map[string]struct{})
	for _, entry := range e.store.Entries() {
		if !e.matchesLocked(entry, name) {
			continue
		}
		for _, v := range catalog.FacetValue(entry, name) {
			seen[v] = struct{}{}
		}
	}
	values := make([]string, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

func (e *Engine) notify(state models.FilterState, restored bool) {
	if e.onChange != nil {
		e.onChange(state, restored)
	}
}

func (e *Engine) stateLocked() models.FilterState {
	state := models.FilterState{Search: e.search}
	if len(e.facets) > 0 {
		state.Facets = make(map[string]string, len(e.facets))
		for k, v := range e.facets {
			state.Facets[k] = v
		}
	}
	return state
}

func (e *Engine) viewLocked() []models.ReplayEntry {
	if !e.dirty {
		return e.view
	}

	var view []models.ReplayEntry
	for _, entry := range e.store.Entries() {
		if e.matchesLocked(entry, "") {
			view = append(view, entry)
		}
	}
	e.sortLocked(view)

	e.view = view
	e.dirty = false
	return e.view
}

// matchesLocked reports whether an entry passes every active constraint.
// skipFacet names a facet whose constraint is ignored (used by cascading
// facet computation); "" skips nothing. Facet values compare exactly and
// case-sensitively; the search term matches case-insensitive substrings.
func (e *Engine) matchesLocked(entry models.ReplayEntry, skipFacet string) bool {
	for name, want := range e.facets {
		if name == skipFacet || want == "" {
			continue
		}
		if !containsValue(catalog.FacetValue(entry, name), want) {
			return false
		}
	}

	if e.search == "" {
		return true
	}
	needle := strings.ToLower(e.search)
	for _, field := range searchFields(entry) {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func (e *Engine) sortLocked(view []models.ReplayEntry) {
	if e.sortSpec.Field == "" {
		return
	}
	desc := e.sortSpec.Order == models.SortOrderDesc
	sort.SliceStable(view, func(i, j int) bool {
		var less bool
		switch e.sortSpec.Field {
		case models.SortByDate:
			less = view[i].FileDate.Before(view[j].FileDate.Time)
		case models.SortBySize:
			less = view[i].FileSize < view[j].FileSize
		case models.SortByMap:
			less = strings.ToLower(view[i].Map) < strings.ToLower(view[j].Map)
		default:
			return false
		}
		if desc {
			return !less && !equalKey(view[i], view[j], e.sortSpec.Field)
		}
		return less
	})
}

func equalKey(a, b models.ReplayEntry, field string) bool {
	switch field {
	case models.SortByDate:
		return a.FileDate.Equal(b.FileDate.Time)
	case models.SortBySize:
		return a.FileSize == b.FileSize
	case models.SortByMap:
		return strings.EqualFold(a.Map, b.Map)
	}
	return false
}

func containsValue(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

// searchFields lists the display fields the search term is matched against.
func searchFields(entry models.ReplayEntry) []string {
	fields := make([]string, 0, 3+len(entry.Players))
	fields = append(fields, entry.Map, entry.TournamentInfo.TournamentPath, entry.GameVersion)
	fields = append(fields, entry.PlayerNames()...)
	return fields
}
