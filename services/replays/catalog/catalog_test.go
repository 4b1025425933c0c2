package catalog

import (
	"testing"
	"time"

	"github.com/lwgtools/replaydeck/services/replays/models"
)

func entry(url, mapName string, players ...string) models.ReplayEntry {
	e := models.ReplayEntry{
		Filename: url,
		URL:      url,
		FileDate: models.NewTime(time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)),
		Map:      mapName,
	}
	for _, p := range players {
		e.Players = append(e.Players, models.Player{Name: p, Team: 1})
	}
	return e
}

func TestLoadDropsInvalidEntries(t *testing.T) {
	store := NewStore(nil)

	entries := []models.ReplayEntry{
		entry("a.json", "Ice", "alice", "bob"),
		{URL: "no-date.json", Players: []models.Player{{Name: "x"}}},
		{FileDate: models.NewTime(time.Now()), Players: []models.Player{{Name: "x"}}}, // no URL
		entry("no-players.json", "Lava"),
	}

	dropped := store.Load(entries)
	if dropped != 3 {
		t.Errorf("Expected 3 dropped entries, got %d", dropped)
	}
	if store.Len() != 1 {
		t.Errorf("Expected 1 entry in store, got %d", store.Len())
	}
}

func TestLoadReplacesPreviousCatalog(t *testing.T) {
	store := NewStore(nil)

	store.Load([]models.ReplayEntry{entry("a.json", "Ice", "alice")})
	store.Load([]models.ReplayEntry{entry("b.json", "Lava", "bob")})

	if store.Len() != 1 {
		t.Fatalf("Expected 1 entry after reload, got %d", store.Len())
	}
	if store.Entries()[0].URL != "b.json" {
		t.Errorf("Expected reloaded entry, got %s", store.Entries()[0].URL)
	}
}

func TestFacetValuesSortedAndDistinct(t *testing.T) {
	store := NewStore(nil)
	store.Load([]models.ReplayEntry{
		entry("a.json", "Lava", "bob"),
		entry("b.json", "Ice", "alice"),
		entry("c.json", "Lava", "alice", "carol"),
	})

	maps := store.FacetValues(models.FacetMap)
	if len(maps) != 2 || maps[0] != "Ice" || maps[1] != "Lava" {
		t.Errorf("Expected [Ice Lava], got %v", maps)
	}

	players := store.FacetValues(models.FacetPlayer)
	want := []string{"alice", "bob", "carol"}
	if len(players) != len(want) {
		t.Fatalf("Expected %d players, got %v", len(want), players)
	}
	for i, p := range want {
		if players[i] != p {
			t.Errorf("Expected player %s at %d, got %s", p, i, players[i])
		}
	}
}

func TestFacetValuesUnknownFacet(t *testing.T) {
	store := NewStore(nil)
	store.Load([]models.ReplayEntry{entry("a.json", "Ice", "alice")})

	if got := store.FacetValues("nonsense"); len(got) != 0 {
		t.Errorf("Expected no values for unknown facet, got %v", got)
	}
}

func TestConcurrentLoadAndRead(t *testing.T) {
	store := NewStore(nil)
	store.Load([]models.ReplayEntry{entry("seed.json", "Ice", "alice")})

	// Startup loads on a goroutine while bound calls may already be reading
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			store.Load([]models.ReplayEntry{
				entry("a.json", "Ice", "alice"),
				entry("b.json", "Lava", "bob"),
			})
		}
	}()

	for i := 0; i < 200; i++ {
		for _, e := range store.Entries() {
			if e.URL == "" {
				t.Fatal("Read a torn entry")
			}
		}
		store.FacetValues(models.FacetMap)
		store.Len()
	}
	<-done
}

func TestFacetValueTournamentPath(t *testing.T) {
	e := entry("a.json", "Ice", "alice")
	e.TournamentInfo = models.TournamentInfo{
		IsTournament:   true,
		TournamentPath: "ProLeague/Season 2",
	}

	got := FacetValue(e, models.FacetTournament)
	if len(got) != 1 || got[0] != "ProLeague/Season 2" {
		t.Errorf("Expected tournament path, got %v", got)
	}

	// Non-tournament replays contribute no tournament facet value
	plain := entry("b.json", "Ice", "alice")
	if got := FacetValue(plain, models.FacetTournament); len(got) != 0 {
		t.Errorf("Expected no tournament value, got %v", got)
	}
}
