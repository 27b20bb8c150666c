package backfill

import (
	"os"
	"path/filepath"
	"testing"
)

func TestProgress_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	p, err := LoadProgress(path)
	if err != nil {
		t.Fatalf("LoadProgress failed: %v", err)
	}
	p.Record(EpisodeSummary{Path: "pilot.yaml", State: "ACCEPT", RunID: "r1", Overall: 0.81})
	p.Record(EpisodeSummary{Path: "episode-2.yaml", State: "ACCEPT_WITH_WARNINGS", Overall: 0.52})
	if err := p.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("expected temp file to be renamed away, stat err = %v", err)
	}

	loaded, err := LoadProgress(path)
	if err != nil {
		t.Fatalf("LoadProgress failed: %v", err)
	}
	if !loaded.Done("pilot.yaml") || !loaded.Done("episode-2.yaml") {
		t.Errorf("expected both files done, got %v", loaded.Episodes)
	}
	if got := loaded.Episodes["pilot.yaml"]; got.RunID != "r1" || got.Overall != 0.81 {
		t.Errorf("unexpected outcome: %+v", got)
	}
	if loaded.StartedAt.IsZero() || loaded.UpdatedAt.IsZero() {
		t.Errorf("expected timestamps, got %+v", loaded)
	}
}

func TestLoadProgress_Missing(t *testing.T) {
	p, err := LoadProgress(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Episodes) != 0 || p.StartedAt.IsZero() {
		t.Errorf("expected fresh progress, got %+v", p)
	}
}

func TestLoadProgress_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadProgress(path); err == nil {
		t.Error("expected error for corrupt progress")
	}
}

func TestProgress_Done(t *testing.T) {
	p := &Progress{}

	if p.Done("pilot.yaml") {
		t.Error("pilot should not be done yet")
	}
	p.Record(EpisodeSummary{Path: "pilot.yaml", State: StateValidated})
	if !p.Done("pilot.yaml") {
		t.Error("pilot should be done")
	}
	if p.Done("episode-2.yaml") {
		t.Error("episode-2 should not be done")
	}
}

func TestProgress_Counts(t *testing.T) {
	p := &Progress{}
	p.Record(EpisodeSummary{Path: "a", State: "ACCEPT"})
	p.Record(EpisodeSummary{Path: "b", State: "ACCEPT"})
	p.Record(EpisodeSummary{Path: "c", State: "ACCEPT_WITH_WARNINGS"})
	p.Record(EpisodeSummary{Path: "d", State: StateInvalid, Error: "episode outline is empty"})
	p.Record(EpisodeSummary{Path: "e", State: "ACCEPT", Error: "insert run: connection refused"})
	p.Record(EpisodeSummary{Path: "f", State: StateValidated})

	passed, flagged, failed := p.Counts()
	if passed != 2 || flagged != 1 || failed != 2 {
		t.Errorf("expected 2/1/2, got %d/%d/%d", passed, flagged, failed)
	}
}

func TestProgress_SaveCreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "state.json")

	p := &Progress{path: path}
	if err := p.Save(); err != nil {
		t.Fatalf("Save with nested dir failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("progress file not created in nested dir: %v", err)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home dir")
	}

	if got, want := expandHome("~/test/path"), filepath.Join(home, "test/path"); got != want {
		t.Errorf("expandHome(~/test/path) = %q, want %q", got, want)
	}
	if got := expandHome("/absolute/path"); got != "/absolute/path" {
		t.Errorf("expandHome(/absolute/path) = %q", got)
	}
}
