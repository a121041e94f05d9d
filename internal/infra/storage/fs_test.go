//go:build !integration

package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/jmobrien1/mdraft/internal/domain"
)

func TestFSStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	t.Run("put then get round-trips", func(t *testing.T) {
		ref, err := store.Put(ctx, []byte("hello mdraft"))
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		got, err := store.Get(ctx, ref)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(got) != "hello mdraft" {
			t.Errorf("expected round-tripped bytes, got %q", got)
		}
	})

	t.Run("identical content shares one ref", func(t *testing.T) {
		a, _ := store.Put(ctx, []byte("same"))
		b, err := store.Put(ctx, []byte("same"))
		if err != nil {
			t.Fatalf("second Put: %v", err)
		}
		if a != b {
			t.Errorf("expected identical refs, got %s and %s", a, b)
		}
	})

	t.Run("exists and delete", func(t *testing.T) {
		ref, _ := store.Put(ctx, []byte("ephemeral"))
		if ok, _ := store.Exists(ctx, ref); !ok {
			t.Fatal("expected blob to exist")
		}
		removed, err := store.Delete(ctx, ref)
		if err != nil || !removed {
			t.Fatalf("Delete: removed=%v err=%v", removed, err)
		}
		if ok, _ := store.Exists(ctx, ref); ok {
			t.Error("expected blob to be gone")
		}
		if removed, _ := store.Delete(ctx, ref); removed {
			t.Error("second delete should report not removed")
		}
	})

	t.Run("get of unknown ref returns ErrNotFound", func(t *testing.T) {
		_, err := store.Get(ctx, "feedfacefeedfacefeedfacefeedfacefeedfacefeedfacefeedfacefeedface")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("rejects path-traversal refs", func(t *testing.T) {
		if _, err := store.Get(ctx, "../etc/passwd"); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}
