package engine

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"planline/internal/config"
	"planline/internal/repo"
)

func TestWriteRetriesExhaustedSurfacesConflict(t *testing.T) {
	e := Engine{Config: config.Default(), Log: zerolog.Nop()}
	attempts := 0
	err := e.withWriteRetries(func() error {
		attempts++
		return repo.ErrVersionConflict
	})
	if !errors.Is(err, ErrConcurrentConflict) {
		t.Fatalf("expected concurrent conflict, got %v", err)
	}
	if attempts != config.DefaultWriteRetries {
		t.Fatalf("expected %d attempts, got %d", config.DefaultWriteRetries, attempts)
	}
}

func TestWriteRetriesRecoverFromVersionRace(t *testing.T) {
	e := Engine{Config: config.Default(), Log: zerolog.Nop()}
	attempts := 0
	err := e.withWriteRetries(func() error {
		attempts++
		if attempts < 3 {
			return repo.ErrVersionConflict
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestWriteRetriesPassThroughOtherErrors(t *testing.T) {
	e := Engine{Config: config.Default(), Log: zerolog.Nop()}
	boom := errors.New("boom")
	attempts := 0
	err := e.withWriteRetries(func() error {
		attempts++
		return boom
	})
	if !errors.Is(err, boom) || attempts != 1 {
		t.Fatalf("expected immediate failure, got %v after %d attempts", err, attempts)
	}
}
