package dataset

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/lox/specdist/internal/store"
)

type fakeSource struct {
	data  []byte
	err   error
	calls int
}

func (f *fakeSource) Fetch(ctx context.Context) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return st
}

func TestLoader_FetchesAndCaches(t *testing.T) {
	st := setupTestStore(t)
	src := &fakeSource{data: testArchive(t)}
	loader := NewLoader(st, src)

	bundle, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(bundle.Records) != 3 {
		t.Fatalf("got %d records, want 3", len(bundle.Records))
	}
	if src.calls != 1 {
		t.Fatalf("source called %d times, want 1", src.calls)
	}

	// Second load must come from cache, even if the source now fails.
	src.err = errors.New("network down")
	bundle, err = loader.Load(context.Background())
	if err != nil {
		t.Fatalf("cached Load: %v", err)
	}
	if len(bundle.Records) != 3 {
		t.Fatalf("cached load got %d records, want 3", len(bundle.Records))
	}
	if src.calls != 1 {
		t.Errorf("source called %d times, want cache hit", src.calls)
	}
}

func TestLoader_Unavailable(t *testing.T) {
	st := setupTestStore(t)
	src := &fakeSource{err: errors.New("connection refused")}
	loader := NewLoader(st, src)

	_, err := loader.Load(context.Background())
	if !errors.Is(err, ErrDataUnavailable) {
		t.Errorf("err = %v, want ErrDataUnavailable", err)
	}
}

func TestLoader_UnparseableFetch(t *testing.T) {
	st := setupTestStore(t)
	src := &fakeSource{data: []byte("not a bundle")}
	loader := NewLoader(st, src)

	_, err := loader.Load(context.Background())
	if !errors.Is(err, ErrDataUnavailable) {
		t.Errorf("err = %v, want ErrDataUnavailable", err)
	}
}

func TestLoader_RefreshBypassesCache(t *testing.T) {
	st := setupTestStore(t)
	src := &fakeSource{data: testArchive(t)}
	loader := NewLoader(st, src)

	if _, err := loader.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := loader.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if src.calls != 2 {
		t.Errorf("source called %d times, want 2", src.calls)
	}
}
