package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	store, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	ex := Exchange{
		ConnectionID: "conn-1",
		Transcript:   "what time is it",
		Reply:        "time to get a watch",
		CreatedAt:    time.Unix(1700000000, 0),
	}
	if err := store.SaveExchange(ctx, ex); err != nil {
		t.Fatalf("SaveExchange: %v", err)
	}
	if err := store.SaveExchange(ctx, ex); err != nil {
		t.Fatalf("second SaveExchange: %v", err)
	}

	var count int
	var transcript, reply string
	row := store.db.QueryRow(`SELECT COUNT(*) FROM exchanges`)
	if err := row.Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	row = store.db.QueryRow(`SELECT transcript, reply FROM exchanges WHERE connection_id = ? LIMIT 1`, "conn-1")
	if err := row.Scan(&transcript, &reply); err != nil {
		t.Fatalf("select: %v", err)
	}
	if transcript != ex.Transcript || reply != ex.Reply {
		t.Errorf("got %q/%q", transcript, reply)
	}
}

func TestSQLiteStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")

	store, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	store.Close()

	// Schema init must be idempotent.
	store, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	store.Close()
}

func TestOpenDispatch(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		store, err := Open(context.Background(), "", "")
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if _, ok := store.(Noop); !ok {
			t.Errorf("store = %T, want Noop", store)
		}
	})

	t.Run("sqlite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a.db")
		store, err := Open(context.Background(), "sqlite", path)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		store.Close()
	})

	t.Run("unknown driver", func(t *testing.T) {
		if _, err := Open(context.Background(), "oracle", "dsn"); err == nil {
			t.Fatal("expected error for unknown driver")
		}
	})
}

func TestNoop(t *testing.T) {
	var s Store = Noop{}
	if err := s.SaveExchange(context.Background(), Exchange{}); err != nil {
		t.Errorf("SaveExchange: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
