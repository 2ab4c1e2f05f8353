package pipeline

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"github.com/aluiziolira/go-bsr-leaderboard/models"
)

var errInjected = errors.New("injected failure")

// renameFailFs simulates a crash between writing the temp file and renaming it.
type renameFailFs struct {
	afero.Fs
}

func (renameFailFs) Rename(string, string) error {
	return errInjected
}

func sampleRecords() []*models.Record {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return []*models.Record{
		{URL: urlA, IsValidFormat: true, Title: "Alpha", Author: "Ann", RankValue: 10, CoverURL: "https://m.media-amazon.com/images/I/a.jpg", CapturedAt: at},
		{URL: urlB, Title: models.UnknownTitle, Author: models.UnknownAuthor, CapturedAt: at, Error: "HTTP 404: Not Found"},
	}
}

func TestStoreRecordsRoundTrip(t *testing.T) {
	store := NewStore(afero.NewMemMapFs(), "data", nil)

	if err := store.WriteRecords(sampleRecords()); err != nil {
		t.Fatalf("write records: %v", err)
	}
	got := store.ReadRecords()
	if diff := cmp.Diff(sampleRecords(), got); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestStoreReadsTolerateMissingAndCorruptFiles(t *testing.T) {
	fsys := afero.NewMemMapFs()
	store := NewStore(fsys, "data", nil)

	if got := store.ReadRecords(); got == nil || len(got) != 0 {
		t.Fatalf("missing collection = %v, want empty", got)
	}
	if out := store.ReadOutput(); out.Published() || len(out.Records) != 0 {
		t.Fatalf("missing output = %+v, want empty default", out)
	}

	if err := afero.WriteFile(fsys, store.Path(RecordsFile), []byte("[{\"url\":"), 0o644); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}
	if err := afero.WriteFile(fsys, store.Path(OutputFile), []byte("not json"), 0o644); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}
	if got := store.ReadRecords(); len(got) != 0 {
		t.Fatalf("corrupt collection = %v, want empty", got)
	}
	if out := store.ReadOutput(); out.Published() {
		t.Fatalf("corrupt output = %+v, want empty default", out)
	}
}

func TestStoreFailedRenameLeavesTargetIntact(t *testing.T) {
	base := afero.NewMemMapFs()
	store := NewStore(base, "data", nil)
	if err := store.WriteRecords(sampleRecords()); err != nil {
		t.Fatalf("seed records: %v", err)
	}
	before, err := afero.ReadFile(base, store.Path(RecordsFile))
	if err != nil {
		t.Fatalf("read seed: %v", err)
	}

	crashing := NewStore(renameFailFs{Fs: base}, "data", nil)
	err = crashing.WriteRecords([]*models.Record{{URL: urlC, Title: "New"}})
	if !errors.Is(err, errInjected) {
		t.Fatalf("error = %v, want injected failure", err)
	}

	after, err := afero.ReadFile(base, store.Path(RecordsFile))
	if err != nil {
		t.Fatalf("target missing after failed write: %v", err)
	}
	if string(after) != string(before) {
		t.Fatal("target changed after failed write")
	}

	entries, err := afero.ReadDir(base, "data")
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Fatalf("temp file %q left behind", e.Name())
		}
	}
}

func TestStoreUpsertRecord(t *testing.T) {
	store := NewStore(afero.NewMemMapFs(), "data", nil)
	if err := store.WriteRecords(sampleRecords()); err != nil {
		t.Fatalf("seed records: %v", err)
	}

	replacement := &models.Record{URL: urlB, Title: "Beta", Author: "Bo", RankValue: 7}
	if err := store.UpsertRecord(replacement); err != nil {
		t.Fatalf("upsert existing: %v", err)
	}
	if err := store.UpsertRecord(&models.Record{URL: urlC, Title: "Gamma"}); err != nil {
		t.Fatalf("upsert new: %v", err)
	}

	got := store.ReadRecords()
	if len(got) != 3 {
		t.Fatalf("records = %d, want 3", len(got))
	}
	if got[1].Title != "Beta" || got[1].Error != "" {
		t.Fatalf("record not replaced in place: %+v", got[1])
	}
	if got[2].URL != urlC {
		t.Fatalf("new record not appended: %+v", got[2])
	}
}

func TestStoreWriteCSVOnDisk(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(nil, dir, nil)

	ranked := Rank(sampleRecords())
	if err := store.WriteCSV(ranked); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, CSVFile))
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if rows[0][0] != "position" || rows[1][2] != "Alpha" || rows[2][8] != "HTTP 404: Not Found" {
		t.Fatalf("unexpected csv: %v", rows)
	}
}

func TestStoreOutputRoundTrip(t *testing.T) {
	store := NewStore(afero.NewMemMapFs(), "data", nil)
	out := Summarize(sampleRecords(), time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))

	if err := store.WriteOutput(out); err != nil {
		t.Fatalf("write output: %v", err)
	}
	if diff := cmp.Diff(out, store.ReadOutput()); diff != "" {
		t.Fatalf("output mismatch (-want +got):\n%s", diff)
	}
}
