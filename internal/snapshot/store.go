package snapshot

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/josepita/shopify-sync/internal/domain"
)

// ErrNoSnapshot reports a lookup against a file that does not exist yet.
var ErrNoSnapshot = errors.New("no snapshot available")

const (
	dayFolderFormat = "20060102"
	archiveFormat   = "20060102_150405"
)

// Store keeps catalog snapshots as ordered-by-date files under one base
// directory: current.csv, previous.csv and a csv_archive/YYYYMMDD/ tree
// of timestamped copies.
type Store struct {
	baseDir    string
	archiveDir string
	exportsDir string
	logger     *log.Logger
}

func NewStore(baseDir string, logger *log.Logger) (*Store, error) {
	s := &Store{
		baseDir:    baseDir,
		archiveDir: filepath.Join(baseDir, "csv_archive"),
		exportsDir: filepath.Join(baseDir, "exports"),
		logger:     logger,
	}
	for _, dir := range []string{s.baseDir, s.archiveDir, s.exportsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	return s, nil
}

func (s *Store) CurrentPath() string  { return filepath.Join(s.baseDir, "current.csv") }
func (s *Store) PreviousPath() string { return filepath.Join(s.baseDir, "previous.csv") }

func (s *Store) Current() ([]domain.ProductRow, error) {
	rows, ok, err := s.readFile(s.CurrentPath())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSnapshot, s.CurrentPath())
	}
	return rows, nil
}

func (s *Store) Previous() ([]domain.ProductRow, bool, error) {
	return s.readFile(s.PreviousPath())
}

// ForDay returns the rows of the last snapshot archived on the given
// calendar day. Archive names carry a timestamp, so the lexicographically
// last file is also the chronologically last.
func (s *Store) ForDay(day time.Time) ([]domain.ProductRow, bool, error) {
	path, ok, err := s.lastFileOfDay(day)
	if err != nil || !ok {
		return nil, false, err
	}
	return s.readFile(path)
}

// WriteCurrent persists rows as the current snapshot.
func (s *Store) WriteCurrent(rows []domain.ProductRow) error {
	f, err := os.Create(s.CurrentPath())
	if err != nil {
		return err
	}
	if err := writeRows(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// BackupCurrent copies current.csv over previous.csv before a new feed is
// ingested. Reports false when there is nothing to back up yet.
func (s *Store) BackupCurrent() (bool, error) {
	if _, err := os.Stat(s.CurrentPath()); errors.Is(err, fs.ErrNotExist) {
		s.logger.Printf("no current snapshot to back up")
		return false, nil
	} else if err != nil {
		return false, err
	}
	if err := copyFile(s.CurrentPath(), s.PreviousPath()); err != nil {
		return false, fmt.Errorf("backup current snapshot: %w", err)
	}
	return true, nil
}

// ReuseLastOfDay copies the day's last archived snapshot into current.csv,
// reporting false when the day has none.
func (s *Store) ReuseLastOfDay(day time.Time) (bool, error) {
	path, ok, err := s.lastFileOfDay(day)
	if err != nil || !ok {
		return false, err
	}
	if err := copyFile(path, s.CurrentPath()); err != nil {
		return false, err
	}
	s.logger.Printf("reusing snapshot %s", filepath.Base(path))
	return true, nil
}

// Archive copies current.csv into the day folder under a timestamped name
// and refreshes last_successful.csv on the first run of the day.
func (s *Store) Archive(now time.Time) error {
	if _, err := os.Stat(s.CurrentPath()); err != nil {
		return fmt.Errorf("archive snapshot: %w", err)
	}

	dayFolder := filepath.Join(s.archiveDir, now.Format(dayFolderFormat))
	if err := os.MkdirAll(dayFolder, 0o755); err != nil {
		return err
	}

	dst := filepath.Join(dayFolder, fmt.Sprintf("catalogo_%s.csv", now.Format(archiveFormat)))
	if err := copyFile(s.CurrentPath(), dst); err != nil {
		return fmt.Errorf("archive snapshot: %w", err)
	}
	s.logger.Printf("snapshot archived as %s", dst)

	lastOK := filepath.Join(s.archiveDir, "last_successful.csv")
	info, err := os.Stat(lastOK)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return copyFile(s.CurrentPath(), lastOK)
	case err != nil:
		return err
	case info.ModTime().Format(dayFolderFormat) != now.Format(dayFolderFormat):
		return copyFile(s.CurrentPath(), lastOK)
	}
	return nil
}

// ExportProductLists writes dated reference lists of newly listed and
// removed products for audit.
func (s *Store) ExportProductLists(now time.Time, newRefs, removedRefs []string) error {
	day := now.Format(dayFolderFormat)
	exports := map[string][]string{
		fmt.Sprintf("new_products_%s.csv", day):     newRefs,
		fmt.Sprintf("removed_products_%s.csv", day): removedRefs,
	}
	for name, refs := range exports {
		var b strings.Builder
		b.WriteString(colReference + "\n")
		for _, ref := range refs {
			b.WriteString(ref + "\n")
		}
		if err := os.WriteFile(filepath.Join(s.exportsDir, name), []byte(b.String()), 0o644); err != nil {
			return fmt.Errorf("write export %s: %w", name, err)
		}
	}
	return nil
}

// CleanOldArchives removes day folders older than the retention window.
func (s *Store) CleanOldArchives(now time.Time, daysToKeep int) error {
	cutoff := now.AddDate(0, 0, -daysToKeep).Format(dayFolderFormat)

	entries, err := os.ReadDir(s.archiveDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if len(name) != len(dayFolderFormat) || !isDigits(name) {
			continue
		}
		if name < cutoff {
			if err := os.RemoveAll(filepath.Join(s.archiveDir, name)); err != nil {
				return err
			}
			s.logger.Printf("removed old archive folder %s", name)
		}
	}
	return nil
}

func (s *Store) lastFileOfDay(day time.Time) (string, bool, error) {
	folder := filepath.Join(s.archiveDir, day.Format(dayFolderFormat))

	entries, err := os.ReadDir(folder)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".csv") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", false, nil
	}
	sort.Strings(names)
	return filepath.Join(folder, names[len(names)-1]), true, nil
}

func (s *Store) readFile(path string) ([]domain.ProductRow, bool, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	rows, err := readRows(f)
	if err != nil {
		return nil, false, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	return rows, true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
