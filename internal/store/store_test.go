package store

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/lox/specdist/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	st := New(db)
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return st
}

func testBundle() *models.Bundle {
	return &models.Bundle{
		Records: []models.OccurrenceRecord{
			{Species: "bradypus_variegatus", Latitude: -17.5, Longitude: -66.5},
			{Species: "bradypus_variegatus", Latitude: -17.6, Longitude: -66.4},
			{Species: "microryzomys_minutus", Latitude: -19.5, Longitude: -69.5},
		},
		Coverages: []models.Coverage{
			{
				Name:     "elevation",
				Geometry: models.CoverageGeometry{NCols: 2, NRows: 2, CellSize: 0.05, NoData: -9999},
				Values:   []float64{-9999, 10, 10, 10},
			},
		},
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	st := setupTestStore(t)
	if err := st.Migrate(); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestSaveAndLoadBundle(t *testing.T) {
	st := setupTestStore(t)
	raw := []byte("bundle archive bytes")

	if err := st.SaveBundle(raw, testBundle()); err != nil {
		t.Fatalf("SaveBundle: %v", err)
	}

	got, fetchedAt, err := st.LoadRawBundle()
	if err != nil {
		t.Fatalf("LoadRawBundle: %v", err)
	}
	if string(got) != string(raw) {
		t.Errorf("raw round trip = %q, want %q", got, raw)
	}
	if fetchedAt.IsZero() {
		t.Error("fetchedAt is zero")
	}
}

func TestLoadRawBundle_Empty(t *testing.T) {
	st := setupTestStore(t)

	got, _, err := st.LoadRawBundle()
	if err != nil {
		t.Fatalf("LoadRawBundle: %v", err)
	}
	if got != nil {
		t.Errorf("empty store returned %d bytes", len(got))
	}
}

func TestSaveBundle_ReplacesOccurrences(t *testing.T) {
	st := setupTestStore(t)
	b := testBundle()

	if err := st.SaveBundle([]byte("v1"), b); err != nil {
		t.Fatalf("SaveBundle: %v", err)
	}
	// Saving again must not duplicate rows.
	if err := st.SaveBundle([]byte("v2"), b); err != nil {
		t.Fatalf("second SaveBundle: %v", err)
	}

	n, err := st.OccurrenceCount()
	if err != nil {
		t.Fatalf("OccurrenceCount: %v", err)
	}
	if n != 3 {
		t.Errorf("occurrence count = %d, want 3", n)
	}
}

func TestSpeciesCounts(t *testing.T) {
	st := setupTestStore(t)
	if err := st.SaveBundle([]byte("raw"), testBundle()); err != nil {
		t.Fatalf("SaveBundle: %v", err)
	}

	counts, err := st.SpeciesCounts()
	if err != nil {
		t.Fatalf("SpeciesCounts: %v", err)
	}
	want := []models.SpeciesCount{
		{Species: "bradypus_variegatus", Count: 2},
		{Species: "microryzomys_minutus", Count: 1},
	}
	if len(counts) != len(want) {
		t.Fatalf("got %d species, want %d", len(counts), len(want))
	}
	for i := range want {
		if counts[i] != want[i] {
			t.Errorf("counts[%d] = %+v, want %+v", i, counts[i], want[i])
		}
	}
}

func TestSaveBundle_DedupesIdenticalPayloads(t *testing.T) {
	st := setupTestStore(t)
	b := testBundle()
	raw := []byte("same payload")

	if err := st.SaveBundle(raw, b); err != nil {
		t.Fatalf("SaveBundle: %v", err)
	}
	if err := st.SaveBundle(raw, b); err != nil {
		t.Fatalf("second SaveBundle: %v", err)
	}

	got, _, err := st.LoadRawBundle()
	if err != nil {
		t.Fatalf("LoadRawBundle: %v", err)
	}
	if string(got) != string(raw) {
		t.Errorf("raw round trip = %q, want %q", got, raw)
	}
}
