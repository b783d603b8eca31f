package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
)

func openMem(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSetGet(t *testing.T) {
	db := openMem(t)
	ctx := context.Background()

	if err := db.Set(ctx, "settings", "volume", json.RawMessage(`0.5`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := db.Get(ctx, "settings", "volume")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(v) != "0.5" {
		t.Errorf("value: got %s, want 0.5", v)
	}
}

func TestGet_Missing(t *testing.T) {
	db := openMem(t)
	if _, err := db.Get(context.Background(), "settings", "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err: got %v, want ErrNotFound", err)
	}
}

func TestSet_Overwrites(t *testing.T) {
	db := openMem(t)
	ctx := context.Background()
	db.Set(ctx, "s", "k", json.RawMessage(`"a"`)) //nolint:errcheck
	db.Set(ctx, "s", "k", json.RawMessage(`"b"`)) //nolint:errcheck

	v, _ := db.Get(ctx, "s", "k")
	if string(v) != `"b"` {
		t.Errorf("value: got %s, want \"b\"", v)
	}
}

func TestSet_RejectsInvalidJSON(t *testing.T) {
	db := openMem(t)
	if err := db.Set(context.Background(), "s", "k", json.RawMessage(`{not json`)); err == nil {
		t.Fatal("Set: expected error for invalid JSON")
	}
}

func TestAll_IsolatedByNamespace(t *testing.T) {
	db := openMem(t)
	ctx := context.Background()
	err := db.SetMany(ctx, "settings", map[string]json.RawMessage{
		"volume":    json.RawMessage(`0.7`),
		"textColor": json.RawMessage(`"#000000"`),
	})
	if err != nil {
		t.Fatalf("SetMany: %v", err)
	}
	db.Set(ctx, "session", "NID_AUT", json.RawMessage(`"x"`)) //nolint:errcheck

	all, err := db.All(ctx, "settings")
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("All: got %d keys, want 2", len(all))
	}
	if string(all["textColor"]) != `"#000000"` {
		t.Errorf("textColor: got %s", all["textColor"])
	}
}

func TestDeleteAndClear(t *testing.T) {
	db := openMem(t)
	ctx := context.Background()
	db.Set(ctx, "session", "a", json.RawMessage(`1`)) //nolint:errcheck
	db.Set(ctx, "session", "b", json.RawMessage(`2`)) //nolint:errcheck

	if err := db.Delete(ctx, "session", "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := db.Get(ctx, "session", "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("after Delete: got %v, want ErrNotFound", err)
	}
	if err := db.Clear(ctx, "session"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	all, _ := db.All(ctx, "session")
	if len(all) != 0 {
		t.Errorf("after Clear: got %d keys, want 0", len(all))
	}
}

func TestPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	ctx := context.Background()

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	db.Set(ctx, "session", "nickname", json.RawMessage(`"streamer"`)) //nolint:errcheck
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	v, err := db.Get(ctx, "session", "nickname")
	if err != nil || string(v) != `"streamer"` {
		t.Errorf("after reopen: got %s, %v", v, err)
	}
}
