// Copyright 2025 James Ross
package episode

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestCatalog(t *testing.T, cap int) *Catalog {
	t.Helper()
	root := t.TempDir()
	c, err := NewCatalog(root, "user-1", cap)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	return c
}

func touchAudio(t *testing.T, c *Catalog, ep Episode) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(c.Dir(), ep.AudioFile), []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(c.Dir(), ep.ID+".txt"), []byte("script"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestAddNewestFirst(t *testing.T) {
	c := newTestCatalog(t, 10)
	ep1 := Episode{ID: "e1", AudioFile: "e1.mp3", CreatedAt: time.Now()}
	ep2 := Episode{ID: "e2", AudioFile: "e2.mp3", CreatedAt: time.Now()}
	touchAudio(t, c, ep1)
	touchAudio(t, c, ep2)

	if err := c.Add(ep1); err != nil {
		t.Fatal(err)
	}
	if err := c.Add(ep2); err != nil {
		t.Fatal(err)
	}

	list, err := c.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "e2" || list[1].ID != "e1" {
		t.Fatalf("expected [e2, e1], got %+v", list)
	}
}

func TestAddReplacesInPlace(t *testing.T) {
	c := newTestCatalog(t, 10)
	ep := Episode{ID: "e1", AudioFile: "e1.mp3", Title: "first"}
	touchAudio(t, c, ep)
	if err := c.Add(ep); err != nil {
		t.Fatal(err)
	}

	ep.Title = "updated"
	if err := c.Add(ep); err != nil {
		t.Fatal(err)
	}

	list, _ := c.List()
	if len(list) != 1 || list[0].Title != "updated" {
		t.Fatalf("expected single updated entry, got %+v", list)
	}
}

func TestAddEvictsOldestBeyondCap(t *testing.T) {
	c := newTestCatalog(t, 2)
	eps := []Episode{
		{ID: "e1", AudioFile: "e1.mp3"},
		{ID: "e2", AudioFile: "e2.mp3"},
		{ID: "e3", AudioFile: "e3.mp3"},
	}
	for _, ep := range eps {
		touchAudio(t, c, ep)
		if err := c.Add(ep); err != nil {
			t.Fatal(err)
		}
	}

	list, err := c.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("expected catalog capped at 2, got %d", len(list))
	}
	if list[0].ID != "e3" || list[1].ID != "e2" {
		t.Fatalf("expected [e3, e2], got %+v", list)
	}

	if _, err := os.Stat(filepath.Join(c.Dir(), "e1.mp3")); !os.IsNotExist(err) {
		t.Fatalf("expected evicted episode's audio file to be deleted, err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(c.Dir(), "e1.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected evicted episode's script file to be deleted, err=%v", err)
	}
}

func TestGetUnknownReturnsErrNotFound(t *testing.T) {
	c := newTestCatalog(t, 10)
	if _, err := c.Get("missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateAppliesPatch(t *testing.T) {
	c := newTestCatalog(t, 10)
	ep := Episode{ID: "e1", AudioFile: "e1.mp3", Title: "orig"}
	touchAudio(t, c, ep)
	if err := c.Add(ep); err != nil {
		t.Fatal(err)
	}

	updated, err := c.Update("e1", func(e *Episode) { e.Title = "patched" })
	if err != nil {
		t.Fatal(err)
	}
	if updated.Title != "patched" {
		t.Fatalf("expected patched title, got %q", updated.Title)
	}
}

func TestDeleteRemovesEntryAndFiles(t *testing.T) {
	c := newTestCatalog(t, 10)
	ep := Episode{ID: "e1", AudioFile: "e1.mp3"}
	touchAudio(t, c, ep)
	if err := c.Add(ep); err != nil {
		t.Fatal(err)
	}

	if err := c.Delete("e1"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get("e1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(c.Dir(), "e1.mp3")); !os.IsNotExist(err) {
		t.Fatalf("expected audio file deleted, err=%v", err)
	}
}

func TestMigrateLegacyDirectorySkipsIndexed(t *testing.T) {
	c := newTestCatalog(t, 10)
	ep := Episode{ID: "e1", AudioFile: "e1.mp3"}
	touchAudio(t, c, ep)
	if err := c.Add(ep); err != nil {
		t.Fatal(err)
	}

	legacy := t.TempDir()
	if err := os.WriteFile(filepath.Join(legacy, "e1.mp3"), []byte("dup"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(legacy, "e2.mp3"), []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}

	migrated, err := c.MigrateLegacyDirectory(legacy, func(path string) (int64, error) {
		info, err := os.Stat(path)
		if err != nil {
			return 0, err
		}
		return info.Size(), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if migrated != 1 {
		t.Fatalf("expected exactly 1 new migration, got %d", migrated)
	}

	list, _ := c.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 episodes after migration, got %d", len(list))
	}
}
