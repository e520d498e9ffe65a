package library

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/yuanying/epubread/internal/navigation"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Create(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCreateAndOpen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "state.db")

	db, err := Create(dbPath)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if version, err := db.SchemaVersion(); err != nil || version != SchemaVersion {
		t.Errorf("SchemaVersion() = %d, %v, want %d", version, err, SchemaVersion)
	}
	if db.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", db.Path(), dbPath)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	db, err = OpenOrCreate(dbPath)
	if err != nil {
		t.Fatalf("OpenOrCreate (open) failed: %v", err)
	}
	defer func() { _ = db.Close() }()

	if version, err := db.SchemaVersion(); err != nil || version != SchemaVersion {
		t.Errorf("SchemaVersion() after reopen = %d, %v, want %d", version, err, SchemaVersion)
	}
}

func TestOpenOrCreate_RejectsOtherSchemaVersion(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")
	db, err := Create(dbPath)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_info SET version = ?", SchemaVersion+1); err != nil {
		t.Fatalf("updating version: %v", err)
	}
	_ = db.Close()

	if _, err := OpenOrCreate(dbPath); !errors.Is(err, ErrSchemaVersion) {
		t.Errorf("OpenOrCreate() error = %v, want ErrSchemaVersion", err)
	}
}

func TestSaveAndLoadState(t *testing.T) {
	db := openTestDB(t)

	want := navigation.State{Position: 2, History: []int{0, 1, 2}}
	if err := db.SaveState("abc", "Test Book", "/books/test.epub", want); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}

	got, ok, err := db.LoadState("abc")
	if err != nil || !ok {
		t.Fatalf("LoadState() = _, %v, %v", ok, err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("LoadState() = %+v, want %+v", got, want)
	}
}

func TestLoadState_Missing(t *testing.T) {
	db := openTestDB(t)

	_, ok, err := db.LoadState("nope")
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if ok {
		t.Errorf("LoadState() ok = true for unknown book")
	}
}

func TestSaveState_Overwrites(t *testing.T) {
	db := openTestDB(t)

	if err := db.SaveState("abc", "Old", "", navigation.State{Position: 1, History: []int{0, 1}}); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}
	first, err := db.GetRecord("abc")
	if err != nil || first == nil {
		t.Fatalf("GetRecord() = %v, %v", first, err)
	}

	if err := db.SaveState("abc", "New", "", navigation.State{Position: 0}); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}
	rec, err := db.GetRecord("abc")
	if err != nil || rec == nil {
		t.Fatalf("GetRecord() = %v, %v", rec, err)
	}
	if rec.Title != "New" || rec.Position != 0 || rec.History != "[]" {
		t.Errorf("record = %+v", rec)
	}
	if !rec.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed from %v to %v", first.CreatedAt, rec.CreatedAt)
	}
}

func TestRecentBooksAndDelete(t *testing.T) {
	db := openTestDB(t)

	for _, key := range []string{"a", "b", "c"} {
		if err := db.SaveState(key, "Book "+key, "", navigation.State{}); err != nil {
			t.Fatalf("SaveState(%q) failed: %v", key, err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	recs, err := db.RecentBooks(2)
	if err != nil {
		t.Fatalf("RecentBooks failed: %v", err)
	}
	if len(recs) != 2 || recs[0].BookKey != "c" || recs[1].BookKey != "b" {
		t.Errorf("RecentBooks(2) = %+v", recs)
	}

	if err := db.DeleteState("c"); err != nil {
		t.Fatalf("DeleteState failed: %v", err)
	}
	if _, ok, _ := db.LoadState("c"); ok {
		t.Errorf("state for c survived DeleteState")
	}
}

func TestRecordState_BadHistory(t *testing.T) {
	rec := Record{BookKey: "x", History: "not json"}
	if _, err := rec.State(); err == nil {
		t.Errorf("State() with corrupt history should fail")
	}
}
