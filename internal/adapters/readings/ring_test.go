package readings

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/kbralten/vxi-dash/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reading(setupID int, offset time.Duration) domain.Reading {
	return domain.Reading{
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(offset),
		SetupID:   setupID,
		SetupName: "s",
	}
}

func TestFileRing_TrimsToCap(t *testing.T) {
	dir := t.TempDir()
	r, err := New(filepath.Join(dir, "readings.json"), 3)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, r.Append(reading(1, time.Duration(i)*time.Second)))
	}

	assert.Equal(t, 3, r.Len())
	all, err := r.All(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, time.Duration(4)*time.Second, all[0].Timestamp.Sub(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestFileRing_LatestAndSince(t *testing.T) {
	dir := t.TempDir()
	r, err := New(filepath.Join(dir, "readings.json"), 0)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		require.NoError(t, r.Append(reading(1, time.Duration(i)*time.Minute)))
	}
	require.NoError(t, r.Append(reading(2, 10*time.Minute)))

	latest, err := r.Latest(1, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.True(t, latest[0].Timestamp.After(latest[1].Timestamp))

	since, err := r.Since(1, 2*time.Minute+time.Second)
	require.NoError(t, err)
	assert.Len(t, since, 3)
}

func TestFileRing_Reset(t *testing.T) {
	dir := t.TempDir()
	r, err := New(filepath.Join(dir, "readings.json"), 0)
	require.NoError(t, err)

	require.NoError(t, r.Append(reading(1, 0)))
	require.NoError(t, r.Append(reading(2, time.Second)))
	require.NoError(t, r.Append(reading(1, 2*time.Second)))

	removed, err := r.Reset(1)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, r.Len())
}

func TestFileRing_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "readings.json")

	r1, err := New(path, 0)
	require.NoError(t, err)
	require.NoError(t, r1.Append(reading(1, 0)))

	r2, err := New(path, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, r2.Len())
}
