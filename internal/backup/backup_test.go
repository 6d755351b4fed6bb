package backup_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarka/xcp-sub000/internal/backup"
	"github.com/tarka/xcp-sub000/internal/config"
)

func TestNeedsBackupDisabled(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	needs, err := backup.NeedsBackup(target, config.BackupDisabled)
	require.NoError(t, err)
	assert.False(t, needs)
}

func TestNeedsBackupNumberedAlwaysWhenTargetExists(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	needs, err := backup.NeedsBackup(target, config.BackupNumbered)
	require.NoError(t, err)
	assert.True(t, needs)
}

func TestNeedsBackupAutoOnlyWithExistingSibling(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	needs, err := backup.NeedsBackup(target, config.BackupAuto)
	require.NoError(t, err)
	assert.False(t, needs)

	require.NoError(t, os.WriteFile(target+".~1~", []byte("old"), 0o644))
	needs, err = backup.NeedsBackup(target, config.BackupAuto)
	require.NoError(t, err)
	assert.True(t, needs)
}

func TestGetBackupPathMonotonicity(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	for _, n := range []string{"1", "3", "7"} {
		require.NoError(t, os.WriteFile(target+".~"+n+"~", []byte("old"), 0o644))
	}

	next, err := backup.GetBackupPath(target)
	require.NoError(t, err)
	assert.Equal(t, target+".~8~", next)
}

func TestGetBackupPathNoExistingBackups(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	next, err := backup.GetBackupPath(target)
	require.NoError(t, err)
	assert.Equal(t, target+".~1~", next)
}
