// Package catalog holds the immutable replay list for a session and derives
// the distinct values of each filterable facet.
package catalog

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/lwgtools/replaydeck/services/replays/models"
)

// Store owns the catalog entries for the lifetime of a session. Entries are
// immutable once loaded; Load swaps the whole catalog, so reads taken before
// a reload keep seeing the old snapshot. Load runs on a background goroutine
// at startup while bound calls may already be reading, hence the lock.
type Store struct {
	mu      sync.RWMutex
	entries []models.ReplayEntry
	facets  map[string][]string
	logger  *slog.Logger
}

// NewStore creates an empty store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		facets: make(map[string][]string),
		logger: logger,
	}
}

// Load replaces the store's contents with the given entries. Entries missing
// a required field (url, date, at least one player) are dropped rather than
// failing the whole load; the dropped count is returned so the caller can
// surface it.
func (s *Store) Load(entries []models.ReplayEntry) (dropped int) {
	valid := make([]models.ReplayEntry, 0, len(entries))
	for _, e := range entries {
		if err := validate(e); err != nil {
			s.logger.Warn("dropping invalid catalog entry", "url", e.URL, "error", err)
			dropped++
			continue
		}
		valid = append(valid, e)
	}

	s.mu.Lock()
	s.entries = valid
	s.rebuildFacetsLocked()
	s.mu.Unlock()

	s.logger.Info("catalog loaded", "entries", len(valid), "dropped", dropped)
	return dropped
}

// Entries returns the current catalog snapshot. Callers must treat it as
// read-only; a later Load swaps the slice out rather than mutating it.
func (s *Store) Entries() []models.ReplayEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries
}

// Len returns the number of valid entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// FacetValues returns the sorted distinct values for a facet. Unknown facet
// names yield an empty slice, not an error.
func (s *Store) FacetValues(name string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.facets[name]
}

// FacetValue extracts the value(s) an entry contributes to a facet. The
// player facet is the only multi-valued one: an entry matches a player
// constraint when any of its players does.
func FacetValue(e models.ReplayEntry, name string) []string {
	switch name {
	case models.FacetMap:
		if e.Map == "" {
			return nil
		}
		return []string{e.Map}
	case models.FacetPlayer:
		return e.PlayerNames()
	case models.FacetTournament:
		if e.TournamentInfo.TournamentPath == "" {
			return nil
		}
		return []string{e.TournamentInfo.TournamentPath}
	default:
		return nil
	}
}

func (s *Store) rebuildFacetsLocked() {
	s.facets = make(map[string][]string, len(models.FacetNames))
	for _, name := range models.FacetNames {
		seen := make(map[string]struct{})
		for _, e := range s.entries {
			for _, v := range FacetValue(e, name) {
				seen[v] = struct{}{}
			}
		}
		values := make([]string, 0, len(seen))
		for v := range seen {
			values = append(values, v)
		}
		sort.Strings(values)
		s.facets[name] = values
	}
}

func validate(e models.ReplayEntry) error {
	switch {
	case e.URL == "":
		return errMissingURL
	case e.FileDate.IsZero():
		return errMissingDate
	case len(e.Players) == 0:
		return errNoPlayers
	}
	return nil
}
