package repository

import (
	"context"
	"errors"
	"strings"

	"calendar-agent/internal/domain"
)

// ContextStore persists named prompt→reply mappings. Merge overlays entries on
// whatever the store already holds; Reset replaces the contents with an empty
// mapping. Writes are not coordinated across processes.
type ContextStore interface {
	Load(ctx context.Context, name string) (domain.ContextEntries, error)
	Merge(ctx context.Context, name string, entries domain.ContextEntries) error
	Reset(ctx context.Context, name string) error
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("repository: store name must not be empty")
	}
	return nil
}
