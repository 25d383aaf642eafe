package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Riboost-Studio/print-agent/internal/model"
)

const (
	logsDir      = "logs"
	configDir    = "config"
	printoutsDir = "printouts"
	backupsDir   = "backups"
)

// Store is the agent's local persistence under its app-data root: config
// blobs, dry-run printouts, logs and backups.
type Store struct {
	root string
	now  func() time.Time
}

// NewStore creates the directory layout under root.
func NewStore(root string) (*Store, error) {
	s := &Store{root: root, now: time.Now}
	for _, dir := range []string{s.root, s.LogsDir(), s.ConfigDir(), s.PrintoutsDir(), s.BackupsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &model.FileSystemError{Op: "create directory", Path: dir, Err: err}
		}
	}
	return s, nil
}

func (s *Store) Root() string         { return s.root }
func (s *Store) LogsDir() string      { return filepath.Join(s.root, logsDir) }
func (s *Store) ConfigDir() string    { return filepath.Join(s.root, configDir) }
func (s *Store) PrintoutsDir() string { return filepath.Join(s.root, printoutsDir) }
func (s *Store) BackupsDir() string   { return filepath.Join(s.root, backupsDir) }

// --- Config Blobs ---

// SaveConfig writes v as config/<name>.json.
func (s *Store) SaveConfig(name string, v any) (string, error) {
	path := filepath.Join(s.ConfigDir(), safeName(name)+".json")
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", &model.FileSystemError{Op: "encode config", Path: path, Err: err}
	}
	if err := writeFileAtomic(path, data); err != nil {
		return "", &model.FileSystemError{Op: "save config", Path: path, Err: err}
	}
	return path, nil
}

// LoadConfig reads config/<name>.json into v. A missing blob yields an error
// matching fs.ErrNotExist.
func (s *Store) LoadConfig(name string, v any) error {
	path := filepath.Join(s.ConfigDir(), safeName(name)+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return &model.FileSystemError{Op: "load config", Path: path, Err: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &model.FileSystemError{Op: "decode config", Path: path, Err: err}
	}
	return nil
}

// --- Printouts ---

// SavePrintout writes a dry-run ticket to printouts/ticket_<job>_<timestamp>.txt.
func (s *Store) SavePrintout(jobID, content string) (string, error) {
	name := fmt.Sprintf("ticket_%s_%s.txt", safeName(jobID), s.timestamp())
	path := filepath.Join(s.PrintoutsDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", &model.FileSystemError{Op: "save printout", Path: path, Err: err}
	}
	return path, nil
}

// --- Retention ---

// Cleanup deletes regular files in dir whose modification time is older than
// maxAge. It returns the number of files removed.
func (s *Store) Cleanup(dir string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, &model.FileSystemError{Op: "cleanup", Path: dir, Err: err}
	}

	cutoff := s.now().Add(-maxAge)
	deleted := 0
	var errs []error
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(dir, e.Name())
			if err := os.Remove(path); err != nil {
				errs = append(errs, &model.FileSystemError{Op: "remove", Path: path, Err: err})
				continue
			}
			deleted++
		}
	}
	return deleted, errors.Join(errs...)
}

// Sweep runs Cleanup over the printouts and logs directories.
func (s *Store) Sweep(maxAge time.Duration) (int, error) {
	var total int
	var errs []error
	for _, dir := range []string{s.PrintoutsDir(), s.LogsDir()} {
		n, err := s.Cleanup(dir, maxAge)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

// --- Backups ---

// Backup snapshots every config blob into backups/config_backup_<timestamp>.json,
// keyed by blob name.
func (s *Store) Backup() (string, error) {
	entries, err := os.ReadDir(s.ConfigDir())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", &model.FileSystemError{Op: "backup", Path: s.ConfigDir(), Err: err}
	}

	snapshot := make(map[string]json.RawMessage)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, file := range names {
		data, err := os.ReadFile(filepath.Join(s.ConfigDir(), file))
		if err != nil {
			continue
		}
		if !json.Valid(data) {
			// keep unparseable blobs verbatim for forensics
			data, _ = json.Marshal(string(data))
		}
		snapshot[strings.TrimSuffix(file, ".json")] = data
	}

	out, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", &model.FileSystemError{Op: "encode backup", Path: s.BackupsDir(), Err: err}
	}

	if err := os.MkdirAll(s.BackupsDir(), 0o755); err != nil {
		return "", &model.FileSystemError{Op: "backup", Path: s.BackupsDir(), Err: err}
	}
	path := filepath.Join(s.BackupsDir(), fmt.Sprintf("config_backup_%s.json", s.timestamp()))
	if err := writeFileAtomic(path, out); err != nil {
		return "", &model.FileSystemError{Op: "write backup", Path: path, Err: err}
	}
	return path, nil
}

// DiskUsage returns the total size in bytes of everything under the root.
func (s *Store) DiskUsage() (int64, error) {
	var total int64
	err := filepath.WalkDir(s.root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total, err
}

// timestamp is an ISO-8601 UTC time with ':' and '.' replaced so that it is
// safe in file names on every platform.
func (s *Store) timestamp() string {
	ts := s.now().UTC().Format("2006-01-02T15:04:05.000Z")
	return strings.NewReplacer(":", "-", ".", "-").Replace(ts)
}

func safeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

func writeFileAtomic(path string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".agent-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}
