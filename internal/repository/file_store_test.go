package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"calendar-agent/internal/domain"
)

func TestFileStore_MergeCreatesAndMerges(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Merge(ctx, "gpt4oContext1.json", domain.ContextEntries{"first ": "one"}))
	require.NoError(t, s.Merge(ctx, "gpt4oContext1.json", domain.ContextEntries{"second ": "two"}))

	got, err := s.Load(ctx, "gpt4oContext1.json")
	require.NoError(t, err)
	require.Equal(t, domain.ContextEntries{"first ": "one", "second ": "two"}, got)

	raw, err := os.ReadFile(filepath.Join(dir, "gpt4oContext1.json"))
	require.NoError(t, err)
	require.Contains(t, string(raw), "\n    \"first \": \"one\"")
}

func TestFileStore_MergeOverUnparsableStartsFresh(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ctx.json"), []byte("{broken"), 0o644))
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.Merge(context.Background(), "ctx.json", domain.ContextEntries{"a": "<b>"}))
	got, err := s.Load(context.Background(), "ctx.json")
	require.NoError(t, err)
	require.Equal(t, domain.ContextEntries{"a": "<b>"}, got)

	raw, err := os.ReadFile(filepath.Join(dir, "ctx.json"))
	require.NoError(t, err)
	require.Contains(t, string(raw), "<b>")
}

func TestFileStore_Reset(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Merge(ctx, "ctx.json", domain.ContextEntries{"a": "b"}))
	require.NoError(t, s.Reset(ctx, "ctx.json"))
	require.NoError(t, s.Reset(ctx, "never-written.json"))

	got, err := s.Load(ctx, "ctx.json")
	require.NoError(t, err)
	require.Empty(t, got)

	raw, err := os.ReadFile(filepath.Join(dir, "never-written.json"))
	require.NoError(t, err)
	require.Equal(t, "{}\n", string(raw))
}

func TestFileStore_LoadMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	got, err := s.Load(context.Background(), "missing.json")
	require.NoError(t, err)
	require.Empty(t, got)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("[1,2]"), 0o644))
	_, err = s.Load(context.Background(), "bad.json")
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode")
}

func TestFileStore_RejectsPathNames(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.Error(t, s.Reset(context.Background(), "../escape.json"))
	require.Error(t, s.Merge(context.Background(), " ", nil))
}
