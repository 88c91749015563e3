package wsmetrics

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRecordOpen(t *testing.T) {
	dir := t.TempDir()
	old, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(old)

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	RecordOpen(zerolog.Nop(), now, "conn-1", "client")

	records := readCSV(t, filepath.Join(dir, DefaultMetricsFileOpens))
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0][1] != "conn-1" || records[0][2] != "client" {
		t.Errorf("unexpected record: %v", records[0])
	}
}

func TestRecordClose(t *testing.T) {
	dir := t.TempDir()
	old, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(old)

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	RecordClose(zerolog.Nop(), now, "conn-1", 1000, true)

	records := readCSV(t, filepath.Join(dir, DefaultMetricsFileCloses))
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0][2] != "1000" || records[0][3] != "true" {
		t.Errorf("unexpected record: %v", records[0])
	}
}

func TestRecordMessage(t *testing.T) {
	dir := t.TempDir()
	old, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(old)

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	RecordMessage(zerolog.Nop(), now, "conn-1", "text", 42)

	records := readCSV(t, filepath.Join(dir, DefaultMetricsFileMessages))
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0][2] != "text" || records[0][3] != "42" {
		t.Errorf("unexpected record: %v", records[0])
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open %s: %v", path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return records
}
