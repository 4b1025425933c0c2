package models

import (
	"time"
)

// Facet names recognised by the filter engine and the view-state codec.
const (
	FacetMap        = "map"
	FacetPlayer     = "player"
	FacetTournament = "tournament"
)

// FacetNames lists every known facet in a fixed order.
var FacetNames = []string{FacetMap, FacetPlayer, FacetTournament}

// Player is one participant of a replay. Spectators (team 0) are filtered
// out at indexing time and never appear in a catalog entry.
type Player struct {
	Name string `json:"name"`
	Team int    `json:"team,omitempty"`
	Clan string `json:"clan,omitempty"`
}

// TournamentInfo is the structured record derived from a replay's location
// inside the archive tree.
type TournamentInfo struct {
	IsTournament   bool   `json:"is_tournament"`
	TournamentPath string `json:"tournament_path"`
	TournamentName string `json:"tournament_name,omitempty"`
	TournamentType string `json:"tournament_type,omitempty"`
	Season         string `json:"season,omitempty"`
	Week           string `json:"week,omitempty"`
	Stage          string `json:"stage,omitempty"`
	Group          string `json:"group,omitempty"`
	MatchInfo      string `json:"match_info,omitempty"`
}

// ReplayEntry is one recorded game session in the catalog. URL doubles as
// the fetch key and the relative path inside an exported archive. Entries
// are immutable once loaded into the catalog store.
type ReplayEntry struct {
	Filename       string         `json:"filename"`
	URL            string         `json:"url"`
	FileDate       Time           `json:"file_date"`
	FileSize       int64          `json:"file_size"`
	Map            string         `json:"map,omitempty"`
	Players        []Player       `json:"players"`
	GameVersion    string         `json:"game_version,omitempty"`
	TournamentInfo TournamentInfo `json:"tournament_info"`
}

// PlayerNames returns the names of all players in entry order.
func (e ReplayEntry) PlayerNames() []string {
	names := make([]string, 0, len(e.Players))
	for _, p := range e.Players {
		names = append(names, p.Name)
	}
	return names
}

// CollectionInfo summarises the archive at indexing time.
type CollectionInfo struct {
	Timestamp    Time  `json:"timestamp"`
	TotalReplays int   `json:"total_replays"`
	TotalSize    int64 `json:"total_size"`
}

// Index is the top-level catalog document, matching the index.json layout
// produced by the archive indexer.
type Index struct {
	LastUpdated    Time           `json:"last_updated"`
	CollectionInfo CollectionInfo `json:"collection_info"`
	Replays        []ReplayEntry  `json:"replays"`
}

// FilterState is the full filter/search state of the browser: at most one
// selected value per facet plus a free-text search term. The zero value is
// the default (unconstrained) state.
type FilterState struct {
	Facets map[string]string `json:"facets,omitempty"`
	Search string            `json:"search,omitempty"`
}

// Facet returns the selected value for a facet, or "" when unset.
func (s FilterState) Facet(name string) string {
	return s.Facets[name]
}

// IsDefault reports whether no facet and no search term is set.
func (s FilterState) IsDefault() bool {
	if s.Search != "" {
		return false
	}
	for _, v := range s.Facets {
		if v != "" {
			return false
		}
	}
	return true
}

// Clone returns a deep copy so callers can hold the state across later
// engine mutations.
func (s FilterState) Clone() FilterState {
	out := FilterState{Search: s.Search}
	if len(s.Facets) > 0 {
		out.Facets = make(map[string]string, len(s.Facets))
		for k, v := range s.Facets {
			if v != "" {
				out.Facets[k] = v
			}
		}
	}
	return out
}

// Equal compares two states, treating a missing facet key and an empty
// value as the same thing.
func (s FilterState) Equal(other FilterState) bool {
	if s.Search != other.Search {
		return false
	}
	for _, name := range FacetNames {
		if s.Facet(name) != other.Facet(name) {
			return false
		}
	}
	return true
}

// Sort field and order constants for the replay list.
const (
	SortByDate = "date"
	SortByMap  = "map"
	SortBySize = "size"

	SortOrderAsc  = "asc"
	SortOrderDesc = "desc"
)

// SortSpec selects an ordering for the filtered view. The zero value keeps
// the catalog's own stable order.
type SortSpec struct {
	Field string `json:"field"`
	Order string `json:"order"`
}

// DownloadPhase is the lifecycle state of the download orchestrator.
type DownloadPhase string

const (
	DownloadIdle      DownloadPhase = "idle"
	DownloadPreparing DownloadPhase = "preparing"
	DownloadRunning   DownloadPhase = "running"
	DownloadCompleted DownloadPhase = "completed"
	DownloadCancelled DownloadPhase = "cancelled"
	DownloadFailed    DownloadPhase = "failed"
)

// Active reports whether the phase denotes an in-flight job.
func (p DownloadPhase) Active() bool {
	return p == DownloadPreparing || p == DownloadRunning
}

// DownloadStatus is a point-in-time snapshot of a download job, safe to hand
// to the presentation layer.
type DownloadStatus struct {
	JobID       string        `json:"jobId"`
	Phase       DownloadPhase `json:"phase"`
	Processed   int           `json:"processed"`
	Failed      int           `json:"failed"`
	TotalCount  int           `json:"totalCount"`
	TotalBytes  int64         `json:"totalBytes"`
	ArchiveName string        `json:"archiveName,omitempty"`
	ArchivePath string        `json:"archivePath,omitempty"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"startedAt"`
}

// DownloadRecord is one row of the persistent download history.
type DownloadRecord struct {
	JobID       string        `json:"jobId"`
	Phase       DownloadPhase `json:"phase"`
	Processed   int           `json:"processed"`
	Failed      int           `json:"failed"`
	TotalCount  int           `json:"totalCount"`
	TotalBytes  int64         `json:"totalBytes"`
	ArchiveName string        `json:"archiveName,omitempty"`
	StartedAt   time.Time     `json:"startedAt"`
	FinishedAt  *time.Time    `json:"finishedAt,omitempty"`
}

// FilterChange is sent to the frontend after every effective filter
// mutation. Token is the encoded view state for the address bar; Restored
// marks changes that came from history navigation and therefore require the
// facet controls to resync.
type FilterChange struct {
	State    FilterState `json:"state"`
	Token    string      `json:"token"`
	Matches  int         `json:"matches"`
	Restored bool        `json:"restored"`
}

// CatalogLoaded is emitted once the catalog source has been read.
type CatalogLoaded struct {
	Total          int            `json:"total"`
	Dropped        int            `json:"dropped"`
	CollectionInfo CollectionInfo `json:"collectionInfo"`
}

// CatalogError is emitted when the catalog source is unreachable or its
// index does not parse. Browsing stays disabled until a reload succeeds.
type CatalogError struct {
	Message string `json:"message"`
}

// PreviewReady is emitted when a map preview thumbnail has been cached.
type PreviewReady struct {
	Map string `json:"map"`
}
