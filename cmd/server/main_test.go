package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"branchsettle/backend/internal/config"
	"branchsettle/backend/internal/store/memory"
	sqlitestore "branchsettle/backend/internal/store/sqlite"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short", ViewCacheTTLSeconds: 60})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", ViewCacheTTLSeconds: 60})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestOpenRepositoryFallsBackToMemory(t *testing.T) {
	repo, closers, err := openRepository(context.Background(), config.Config{}, time.UTC)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := repo.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", repo)
	}
	if len(closers) != 0 {
		t.Fatalf("expected nothing to close, got %d closers", len(closers))
	}
}

func TestOpenRepositoryUsesSQLitePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settle.db")
	repo, closers, err := openRepository(context.Background(), config.Config{SQLitePath: path}, time.UTC)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		for _, closeFn := range closers {
			_ = closeFn()
		}
	})
	if _, ok := repo.(*sqlitestore.Store); !ok {
		t.Fatalf("expected sqlite store, got %T", repo)
	}
}
