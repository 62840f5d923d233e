package migration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add discount table", "add_discount_table"},
		{"Add-Receipt-Index", "add_receipt_index"},
		{"ADD__SETTLED__DATE", "add_settled_date"},
		{"   spaces   ", "spaces"},
		{"fee heads: tax v2!", "fee_heads_tax_v2"},
		{"!!!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, Slug(tt.input))
		})
	}
}

func TestScaffold(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 6, 2, 14, 5, 9, 0, time.UTC)

	e, err := Scaffold(dir, "Add late fee head", "Late fee policy", now)
	require.NoError(t, err)

	assert.Equal(t, uint64(20260602140509), e.Version)
	assert.Equal(t, "add_late_fee_head", e.Name)
	assert.Equal(t, filepath.Join(dir, "20260602140509_add_late_fee_head.up.sql"), e.UpPath)
	assert.Equal(t, filepath.Join(dir, "20260602140509_add_late_fee_head.down.sql"), e.DownPath)

	up, err := os.ReadFile(e.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(up), "-- Migration: add_late_fee_head\n")
	assert.Contains(t, string(up), "-- Description: Late fee policy")

	down, err := os.ReadFile(e.DownPath)
	require.NoError(t, err)
	assert.Contains(t, string(down), "(rollback)")

	t.Run("same version twice fails", func(t *testing.T) {
		_, err := Scaffold(dir, "Add late fee head", "", now)
		assert.Error(t, err)
	})

	t.Run("unusable name", func(t *testing.T) {
		_, err := Scaffold(dir, "???", "", now)
		assert.Error(t, err)
	})
}

func TestListMigrations(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		entries, err := ListMigrations(filepath.Join(t.TempDir(), "absent"))
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("ordered by version", func(t *testing.T) {
		dir := t.TempDir()
		_, err := Scaffold(dir, "second", "", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		_, err = Scaffold(dir, "first", "", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("notes"), 0o644))

		entries, err := ListMigrations(dir)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "first", entries[0].Name)
		assert.Equal(t, "second", entries[1].Name)
	})

	t.Run("down without up", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "20260101000000_orphan.down.sql"), nil, 0o644))

		_, err := ListMigrations(dir)
		assert.ErrorContains(t, err, "no up file")
	})

	t.Run("malformed name", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "create_invoices.sql"), nil, 0o644))

		_, err := ListMigrations(dir)
		assert.ErrorContains(t, err, "malformed")
	})
}

func TestRepositoryMigrationsArePaired(t *testing.T) {
	entries, err := ListMigrations(filepath.Join("..", "..", "..", "migrations"))
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	for _, e := range entries {
		assert.NotEmpty(t, e.DownPath, "migration %d_%s needs a rollback", e.Version, e.Name)
	}
}
