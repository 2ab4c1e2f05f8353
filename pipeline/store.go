package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/afero"

	"github.com/aluiziolira/go-bsr-leaderboard/models"
)

// File names inside the data directory.
const (
	RecordsFile = "metadata.json"
	OutputFile  = "output.json"
	CSVFile     = "output.csv"
)

// Store persists the record collection and the ranked output. Every write
// goes to a temporary file that is renamed over the target, so readers see
// either the old or the new content and never a partial file.
type Store struct {
	fs     afero.Fs
	dir    string
	logger *slog.Logger
}

// NewStore builds a store rooted at dir. A nil fs uses the OS filesystem.
func NewStore(fsys afero.Fs, dir string, logger *slog.Logger) *Store {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{fs: fsys, dir: dir, logger: logger}
}

// Path returns the location of a file in the data directory.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// ReadRecords returns the persisted collection. A missing or corrupt file
// yields an empty collection.
func (s *Store) ReadRecords() []*models.Record {
	var records []*models.Record
	if !s.readJSON(RecordsFile, &records) {
		return []*models.Record{}
	}
	if records == nil {
		records = []*models.Record{}
	}
	return records
}

// WriteRecords replaces the persisted collection.
func (s *Store) WriteRecords(records []*models.Record) error {
	if records == nil {
		records = []*models.Record{}
	}
	return s.writeAtomic(RecordsFile, func(w io.Writer) error {
		return encodeJSON(w, records)
	})
}

// UpsertRecord replaces the record with the same URL or appends rec.
func (s *Store) UpsertRecord(rec *models.Record) error {
	if rec == nil {
		return fmt.Errorf("record is required")
	}
	records := s.ReadRecords()
	replaced := false
	for i, existing := range records {
		if existing != nil && existing.URL == rec.URL {
			records[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, rec)
	}
	return s.WriteRecords(records)
}

// ReadOutput returns the published leaderboard, or an empty one when none
// exists or the file cannot be parsed.
func (s *Store) ReadOutput() *models.RankedOutput {
	var out models.RankedOutput
	if !s.readJSON(OutputFile, &out) {
		return &models.RankedOutput{Records: []*models.Record{}}
	}
	if out.Records == nil {
		out.Records = []*models.Record{}
	}
	return &out
}

// WriteOutput replaces the published leaderboard.
func (s *Store) WriteOutput(out *models.RankedOutput) error {
	if out == nil {
		return fmt.Errorf("ranked output is required")
	}
	return s.writeAtomic(OutputFile, func(w io.Writer) error {
		return encodeJSON(w, out)
	})
}

// WriteCSV exports records, in the given order, as CSV.
func (s *Store) WriteCSV(records []*models.Record) error {
	return s.writeAtomic(CSVFile, func(w io.Writer) error {
		writer := csv.NewWriter(w)
		header := []string{"position", "rank_value", "title", "author", "is_valid_format", "cover_url", "url", "captured_at", "error"}
		if err := writer.Write(header); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
		for i, rec := range records {
			row := []string{
				strconv.Itoa(i + 1),
				strconv.Itoa(rec.RankValue),
				rec.Title,
				rec.Author,
				strconv.FormatBool(rec.IsValidFormat),
				rec.CoverURL,
				rec.URL,
				rec.CapturedAt.UTC().Format(time.RFC3339),
				rec.Error,
			}
			if err := writer.Write(row); err != nil {
				return fmt.Errorf("write csv record: %w", err)
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return fmt.Errorf("flush csv records: %w", err)
		}
		return nil
	})
}

func (s *Store) readJSON(name string, v any) bool {
	path := s.Path(name)
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("read data file", slog.String("path", path), slog.Any("error", err))
		}
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Warn("parse data file", slog.String("path", path), slog.Any("error", err))
		return false
	}
	return true
}

// writeAtomic streams content into a temporary sibling of name and renames
// it into place. The temporary file is removed on any failure.
func (s *Store) writeAtomic(name string, write func(io.Writer) error) (err error) {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", s.dir, err)
	}

	tmp, err := afero.TempFile(s.fs, s.dir, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	closed := false
	defer func() {
		if err == nil {
			return
		}
		if !closed {
			_ = tmp.Close()
		}
		if rmErr := s.fs.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			s.logger.Warn("remove temp file", slog.String("path", tmpName), slog.Any("error", rmErr))
		}
	}()

	if err := write(tmp); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", name, err)
	}
	closed = true
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := s.fs.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", name, err)
	}
	if err := s.fs.Rename(tmpName, s.Path(name)); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
