// Package indexer builds a catalog index from a local replay archive tree.
// It walks the archive for replay JSON files, extracts players and map data
// from each, and derives tournament information from the directory layout
// the community archive uses.
package indexer

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lwgtools/replaydeck/services/replays/models"
)

// IndexFileName is the canonical name of the catalog document inside an
// archive directory.
const IndexFileName = "index.json"

// Indexer scans a replay directory and assembles the catalog index.
type Indexer struct {
	root   string
	logger *slog.Logger
}

// New creates an indexer rooted at the given archive directory.
func New(root string, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{root: root, logger: logger}
}

// Build walks the archive and returns the assembled index. Files that fail
// to parse are logged and skipped; only a completely unreadable root is an
// error.
func (ix *Indexer) Build() (models.Index, error) {
	now := models.NewTime(time.Now())
	index := models.Index{
		LastUpdated: now,
		CollectionInfo: models.CollectionInfo{
			Timestamp: now,
		},
	}

	err := filepath.WalkDir(ix.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".json" || d.Name() == IndexFileName {
			return nil
		}

		entry, perr := ix.processReplayFile(path)
		if perr != nil {
			ix.logger.Warn("skipping unreadable replay", "path", path, "error", perr)
			return nil
		}
		index.Replays = append(index.Replays, entry)
		index.CollectionInfo.TotalSize += entry.FileSize
		return nil
	})
	if err != nil {
		return models.Index{}, fmt.Errorf("failed to walk replay directory: %w", err)
	}

	index.CollectionInfo.TotalReplays = len(index.Replays)
	ix.logger.Info("indexed replay archive", "root", ix.root, "replays", len(index.Replays))
	return index, nil
}

// replayFile is the subset of a raw replay document the index needs.
type replayFile struct {
	Map         string `json:"map"`
	GameVersion string `json:"gameVersion"`
	Players     []struct {
		Name string `json:"name"`
		Team int    `json:"team"`
		Clan string `json:"clan"`
	} `json:"players"`
}

func (ix *Indexer) processReplayFile(path string) (models.ReplayEntry, error) {
	rel, err := filepath.Rel(ix.root, path)
	if err != nil {
		return models.ReplayEntry{}, fmt.Errorf("failed to relativize path: %w", err)
	}
	rel = filepath.ToSlash(rel)

	info, err := os.Stat(path)
	if err != nil {
		return models.ReplayEntry{}, fmt.Errorf("failed to stat replay: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return models.ReplayEntry{}, fmt.Errorf("failed to read replay: %w", err)
	}

	var raw replayFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return models.ReplayEntry{}, fmt.Errorf("failed to parse replay: %w", err)
	}

	// Team 0 marks spectators; they are not part of the match.
	var players []models.Player
	for _, p := range raw.Players {
		if p.Team == 0 {
			continue
		}
		players = append(players, models.Player{Name: p.Name, Team: p.Team, Clan: p.Clan})
	}

	return models.ReplayEntry{
		Filename:       filepath.Base(path),
		URL:            rel,
		FileDate:       models.NewTime(info.ModTime()),
		FileSize:       info.Size(),
		Map:            raw.Map,
		Players:        players,
		GameVersion:    raw.GameVersion,
		TournamentInfo: ExtractTournamentInfo(rel),
	}, nil
}

// WriteIndex persists an index as pretty-printed JSON at the given path.
func WriteIndex(index models.Index, path string) error {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	return nil
}

// Directory prefixes that carry no tournament meaning and are stripped
// before classification.
var ignoredPrefixes = map[string]bool{
	"ce_replay_folder": true,
	"CE Replay Folder": true,
}

// ExtractTournamentInfo classifies a replay by its relative path inside the
// archive. The heuristics mirror the layout the community archive grew over
// the years: Pro League seasons, Closed Event Cups, the Global League,
// replay packs, LWG500 and showmatches.
func ExtractTournamentInfo(relPath string) models.TournamentInfo {
	relPath = filepath.ToSlash(relPath)
	info := models.TournamentInfo{
		TournamentPath: parentPath(relPath),
	}

	parts := strings.Split(relPath, "/")
	for len(parts) > 0 && ignoredPrefixes[parts[0]] {
		parts = parts[1:]
	}
	if len(parts) == 0 {
		return info
	}

	switch {
	case containsPart(parts, "ProLeague"):
		info.IsTournament = true
		info.TournamentType = "Pro League"
		info.TournamentName = "Pro League"
		if season := findPrefixFold(parts, "season"); season != "" {
			info.Season = lastField(season)
		}
		if week := findPrefixFold(parts, "week"); week != "" {
			info.Week = lastField(week)
		}
		// ProLeague/season/week/match_name/file
		if len(parts) > 4 {
			match := parts[len(parts)-2]
			if strings.Contains(strings.ToLower(match), " vs ") || strings.Contains(match, " ") {
				info.MatchInfo = match
			}
		}

	case findPrefix(parts, "Closed Event Cup Vol") != "":
		cup := findPrefix(parts, "Closed Event Cup Vol")
		info.IsTournament = true
		info.TournamentType = "Closed Event Cup"
		info.TournamentName = cup
		if i := strings.LastIndex(cup, "Vol"); i >= 0 {
			info.Season = strings.TrimSpace(cup[i+len("Vol"):])
		}

	case containsPart(parts, "Global Littlewargame League Replays"):
		info.IsTournament = true
		info.TournamentType = "Global League"
		info.TournamentName = "Global League"
		if containsPart(parts, "Group Stage") {
			info.Stage = "Group Stage"
			for _, p := range parts {
				if strings.HasPrefix(p, "Group ") && p != "Group Stage" {
					info.Group = p
					break
				}
			}
		}

	case findPrefix(parts, "CE_s Replaypack No") != "":
		info.TournamentType = "Replay Pack"
		info.TournamentName = findPrefix(parts, "CE_s Replaypack No")

	case containsPart(parts, "LWGFiveHundred792023"):
		info.IsTournament = true
		info.TournamentType = "LWG500"
		info.TournamentName = "LWG 500 2023"

	case strings.Contains(strings.ToLower(relPath), "showmatch"):
		info.TournamentType = "Showmatch"
		info.TournamentName = "Showmatch"
	}

	return info
}

func parentPath(relPath string) string {
	dir := filepath.ToSlash(filepath.Dir(relPath))
	if dir == "." {
		return ""
	}
	return dir
}

func containsPart(parts []string, want string) bool {
	for _, p := range parts {
		if p == want {
			return true
		}
	}
	return false
}

func findPrefix(parts []string, prefix string) string {
	for _, p := range parts {
		if strings.HasPrefix(p, prefix) {
			return p
		}
	}
	return ""
}

func findPrefixFold(parts []string, prefix string) string {
	for _, p := range parts {
		if strings.HasPrefix(strings.ToLower(p), prefix) {
			return p
		}
	}
	return ""
}

func lastField(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}
