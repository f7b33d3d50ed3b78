// Copyright 2025 James Ross

// Package episode implements the per-user episode catalog: a metadata
// index plus the audio/script files it indexes, with FIFO retention
// capping how many episodes a user may accumulate.
package episode

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Episode is a finalized audio artifact plus its metadata, belonging to
// one user's catalog.
type Episode struct {
	ID              string             `json:"id"`
	Title           string             `json:"title"`
	CreatedAt       time.Time          `json:"created_at"`
	AudioFile       string             `json:"audio_file"`
	SizeBytes       int64              `json:"size_bytes"`
	DurationSeconds float64            `json:"duration_seconds"`
	SourceURL       string             `json:"source_url,omitempty"`
	TokensUsed      int                `json:"tokens_used,omitempty"`
	ProvidersUsed   map[string]string  `json:"providers_used,omitempty"`
	StageTimings    map[string]float64 `json:"stage_timings,omitempty"`
}

// Catalog manages one user's on-disk episode directory:
// episodes/<user_id>/{metadata.json, <id>.<ext>, <id>.txt, feed.xml}.
type Catalog struct {
	userID string
	dir    string
	cap    int
}

// NewCatalog creates (if absent) and returns a Catalog rooted at
// <episodesRoot>/<userID>.
func NewCatalog(episodesRoot, userID string, cap int) (*Catalog, error) {
	dir := filepath.Join(episodesRoot, userID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create episode dir: %w", err)
	}
	return &Catalog{userID: userID, dir: dir, cap: cap}, nil
}

// Dir returns the catalog's on-disk directory.
func (c *Catalog) Dir() string { return c.dir }

func (c *Catalog) metadataPath() string { return filepath.Join(c.dir, "metadata.json") }

func (c *Catalog) load() ([]Episode, error) {
	data, err := os.ReadFile(c.metadataPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var list []Episode
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse metadata.json: %w", err)
	}
	return list, nil
}

func (c *Catalog) save(list []Episode) error {
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, c.metadataPath())
}

// Add inserts ep at the head of the list (newest-first), or replaces it in
// place if its id is already present. If the resulting length exceeds the
// catalog's cap, the tail entry is popped and its audio and script files
// are deleted from disk.
func (c *Catalog) Add(ep Episode) error {
	list, err := c.load()
	if err != nil {
		return err
	}

	replaced := false
	for i := range list {
		if list[i].ID == ep.ID {
			list[i] = ep
			replaced = true
			break
		}
	}
	if !replaced {
		list = append([]Episode{ep}, list...)
	}

	if len(list) > c.cap {
		tail := list[len(list)-1]
		list = list[:len(list)-1]
		c.deleteFiles(tail)
	}

	return c.save(list)
}

func (c *Catalog) deleteFiles(ep Episode) {
	if ep.AudioFile != "" {
		_ = os.Remove(filepath.Join(c.dir, ep.AudioFile))
	}
	_ = os.Remove(filepath.Join(c.dir, ep.ID+".txt"))
}

// List returns all episodes, newest first.
func (c *Catalog) List() ([]Episode, error) {
	return c.load()
}

// Get returns the episode with the given id, or ErrNotFound.
func (c *Catalog) Get(id string) (Episode, error) {
	list, err := c.load()
	if err != nil {
		return Episode{}, err
	}
	for _, ep := range list {
		if ep.ID == id {
			return ep, nil
		}
	}
	return Episode{}, ErrNotFound
}

// ErrNotFound is returned by Get/Update/Delete for an unknown episode id.
var ErrNotFound = fmt.Errorf("episode: not found")

// Update applies patch to the stored episode with id and writes it back.
func (c *Catalog) Update(id string, patch func(*Episode)) (Episode, error) {
	list, err := c.load()
	if err != nil {
		return Episode{}, err
	}
	for i := range list {
		if list[i].ID == id {
			patch(&list[i])
			if err := c.save(list); err != nil {
				return Episode{}, err
			}
			return list[i], nil
		}
	}
	return Episode{}, ErrNotFound
}

// Delete removes the episode with id from the index and deletes its
// on-disk audio and script files.
func (c *Catalog) Delete(id string) error {
	list, err := c.load()
	if err != nil {
		return err
	}
	for i := range list {
		if list[i].ID == id {
			c.deleteFiles(list[i])
			list = append(list[:i], list[i+1:]...)
			return c.save(list)
		}
	}
	return ErrNotFound
}

// MigrateLegacyDirectory backfills metadata entries for audio files in a
// legacy flat directory that are not yet indexed, probing each file's size
// (duration is left to the caller, since probing it requires an external
// audio-metadata tool out of this package's scope).
func (c *Catalog) MigrateLegacyDirectory(legacyDir string, probeSize func(path string) (int64, error)) (int, error) {
	entries, err := os.ReadDir(legacyDir)
	if err != nil {
		return 0, fmt.Errorf("read legacy dir: %w", err)
	}
	list, err := c.load()
	if err != nil {
		return 0, err
	}
	indexed := map[string]bool{}
	for _, ep := range list {
		indexed[ep.AudioFile] = true
	}

	migrated := 0
	for _, e := range entries {
		if e.IsDir() || indexed[e.Name()] {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".mp3" && ext != ".wav" {
			continue
		}
		id := e.Name()[:len(e.Name())-len(ext)]
		size, err := probeSize(filepath.Join(legacyDir, e.Name()))
		if err != nil {
			continue
		}
		list = append(list, Episode{
			ID:        id,
			Title:     id,
			CreatedAt: time.Now().UTC(),
			AudioFile: e.Name(),
			SizeBytes: size,
		})
		migrated++
	}
	if migrated > 0 {
		if err := c.save(list); err != nil {
			return 0, err
		}
	}
	return migrated, nil
}
