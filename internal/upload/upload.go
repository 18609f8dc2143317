package upload

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Stats tracks upload progress.
type Stats struct {
	Found    int
	Uploaded int
	Skipped  int
	Errored  int
}

// Uploader walks a directory of record archives, runs each through the
// dashboard's analyze endpoint, and saves the result. Prediction mode pairs
// each archive with its metadata CSV; detection sends the archive alone.
type Uploader struct {
	client *Client
	state  *StateDB
	dir    string
	mode   string
	dryRun bool
	log    *slog.Logger
	stats  Stats
}

// New creates a new Uploader.
func New(client *Client, state *StateDB, dir, mode string, dryRun bool, log *slog.Logger) *Uploader {
	return &Uploader{
		client: client,
		state:  state,
		dir:    dir,
		mode:   mode,
		dryRun: dryRun,
		log:    log,
	}
}

// Run discovers archives and uploads the new ones.
func (u *Uploader) Run() (*Stats, error) {
	archives, err := u.discover()
	if err != nil {
		return &u.stats, err
	}
	u.stats.Found = len(archives)

	for _, zipPath := range archives {
		if err := u.uploadOne(zipPath); err != nil {
			u.stats.Errored++
			u.log.Error("upload failed", "archive", zipPath, "error", err)
		}
	}
	return &u.stats, nil
}

func (u *Uploader) discover() ([]string, error) {
	var archives []string
	err := filepath.WalkDir(u.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".zip") {
			archives = append(archives, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", u.dir, err)
	}
	sort.Strings(archives)
	return archives, nil
}

func (u *Uploader) uploadOne(zipPath string) error {
	relPath, err := filepath.Rel(u.dir, zipPath)
	if err != nil {
		relPath = zipPath
	}

	info, err := os.Stat(zipPath)
	if err != nil {
		return fmt.Errorf("stating archive: %w", err)
	}
	hash, err := HashFile(zipPath)
	if err != nil {
		return fmt.Errorf("hashing archive: %w", err)
	}

	done, err := u.state.IsUploaded(relPath, u.mode, info.Size(), hash)
	if err != nil {
		return fmt.Errorf("checking state: %w", err)
	}
	if done {
		u.stats.Skipped++
		u.log.Debug("already uploaded", "archive", relPath)
		return nil
	}

	metadataPath := ""
	if u.mode == "prediction" {
		metadataPath, err = u.findMetadata(zipPath)
		if err != nil {
			return err
		}
	}

	if u.dryRun {
		u.log.Info("would upload", "archive", relPath, "metadata", metadataPath)
		u.stats.Uploaded++
		return nil
	}

	if err := u.client.Analyze(u.mode, metadataPath, zipPath); err != nil {
		return err
	}
	if err := u.client.Save(u.mode); err != nil {
		return err
	}

	if err := u.state.MarkUploaded(relPath, u.mode, info.Size(), hash); err != nil {
		return fmt.Errorf("recording state: %w", err)
	}
	u.stats.Uploaded++
	u.log.Info("uploaded", "archive", relPath)
	return nil
}

// findMetadata locates the CSV paired with an archive: <base>.csv or
// <base>_metadata.csv next to it, falling back to metadata.csv in the same
// directory.
func (u *Uploader) findMetadata(zipPath string) (string, error) {
	base := strings.TrimSuffix(zipPath, filepath.Ext(zipPath))
	candidates := []string{
		base + ".csv",
		base + "_metadata.csv",
		filepath.Join(filepath.Dir(zipPath), "metadata.csv"),
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("no metadata CSV found for %s", zipPath)
}
