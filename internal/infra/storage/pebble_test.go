package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func TestPebbleStore_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pebble")
	ps, err := NewPebbleStore(dir)
	if err != nil {
		t.Fatalf("NewPebbleStore failed: %v", err)
	}
	ctx := context.Background()

	state, err := ps.LoadSession(ctx)
	if err != nil || state != nil {
		t.Fatalf("expected (nil, nil) for empty store, got %v %v", state, err)
	}

	in := sampleState()
	if err := ps.SaveSession(ctx, in); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	if err := ps.SaveConfig("last_seed", "42"); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	if err := ps.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// survives reopen
	ps, err = NewPebbleStore(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer ps.Close()

	out, err := ps.LoadSession(ctx)
	if err != nil {
		t.Fatalf("LoadSession failed: %v", err)
	}
	if !out.Balance.Equal(in.Balance) || len(out.Items) != 2 || len(out.Transactions) != 2 {
		t.Errorf("unexpected state %+v", out)
	}
	if out.Items[0].Symbol != "TSLA" {
		t.Errorf("Expected item order preserved, got %s first", out.Items[0].Symbol)
	}

	meta, err := ps.LoadConfigMap()
	if err != nil {
		t.Fatalf("LoadConfigMap failed: %v", err)
	}
	if len(meta) != 1 || meta["last_seed"] != "42" {
		t.Errorf("Expected last_seed=42 only, got %v", meta)
	}
}

func TestPebbleStore_Invalid(t *testing.T) {
	if _, err := NewPebbleStore(""); err == nil {
		t.Error("expected error for empty path")
	}

	ps, err := NewPebbleStore(filepath.Join(t.TempDir(), "pebble"))
	if err != nil {
		t.Fatalf("NewPebbleStore failed: %v", err)
	}
	defer ps.Close()
	if err := ps.SaveSession(context.Background(), nil); err == nil {
		t.Error("expected error for nil state")
	}
}
