package storage

import (
	"context"
	"testing"
)

func TestNewStoreMemory(t *testing.T) {
	for _, kind := range []string{"", "memory", " Memory "} {
		store, err := NewStore(kind, "")
		if err != nil {
			t.Fatalf("new memory store for kind %q: %v", kind, err)
		}
		if _, ok := store.(*MemoryStore); !ok {
			t.Fatalf("expected memory store for kind %q, got %T", kind, store)
		}
		if err := CloseIfSupported(store); err != nil {
			t.Fatalf("close memory store: %v", err)
		}
	}
}

func TestNewStoreUnsupported(t *testing.T) {
	if _, err := NewStore("postgres", ""); err == nil {
		t.Fatal("expected unsupported store error")
	}
}

func TestNewStoreSQLiteRequiresPath(t *testing.T) {
	if _, err := NewStore(KindSQLite, " "); err == nil {
		t.Fatal("expected error for sqlite store without a path")
	}
}

func TestCloseIfSupportedNil(t *testing.T) {
	if err := CloseIfSupported(nil); err != nil {
		t.Fatalf("close nil store: %v", err)
	}
}

func TestMemoryStoreFromFactoryRequiresInit(t *testing.T) {
	store, err := NewStore(KindMemory, "")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.SaveGenerationHistory(context.Background(), "run", nil); err != ErrNotInitialized {
		t.Fatalf("expected ErrNotInitialized before Init, got %v", err)
	}
}
