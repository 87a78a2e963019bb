package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProfiles(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestProfileLoaderParsesAndSorts(t *testing.T) {
	path := writeProfiles(t, t.TempDir(), `
agents:
  zeta:
    style: bold
    initial_cash: 5000
  alpha:
    style: cautious
    model: gpt-4o
  disabled-one:
    style: balanced
    enabled: false
`)
	l, err := NewProfileLoader(path)
	require.NoError(t, err)

	snap := l.Snapshot()
	assert.Equal(t, int64(1), snap.Version)
	require.Len(t, snap.Profiles, 2) // disabled 被过滤

	assert.Equal(t, "alpha", snap.Profiles[0].Name)
	assert.Equal(t, "conservative", snap.Profiles[0].Style) // 别名归一化
	assert.Equal(t, "gpt-4o", snap.Profiles[0].Model)
	assert.Equal(t, "zeta", snap.Profiles[1].Name)
	assert.Equal(t, "aggressive", snap.Profiles[1].Style)
	assert.Equal(t, 5000.0, snap.Profiles[1].InitialCash)
}

func TestProfileLoaderRejectsEmpty(t *testing.T) {
	path := writeProfiles(t, t.TempDir(), `
agents:
  only-one:
    enabled: false
`)
	_, err := NewProfileLoader(path)
	assert.Error(t, err)

	_, err = NewProfileLoader("")
	assert.Error(t, err)
}

func TestProfileLoaderSnapshotIsCopy(t *testing.T) {
	path := writeProfiles(t, t.TempDir(), `
agents:
  alpha:
    style: balanced
`)
	l, err := NewProfileLoader(path)
	require.NoError(t, err)

	snap := l.Snapshot()
	snap.Profiles[0].Name = "mutated"
	assert.Equal(t, "alpha", l.Snapshot().Profiles[0].Name)
}

func TestNormalizeStyle(t *testing.T) {
	assert.Equal(t, "aggressive", NormalizeStyle("Risky"))
	assert.Equal(t, "conservative", NormalizeStyle(" SAFE "))
	assert.Equal(t, "balanced", NormalizeStyle(""))
	assert.Equal(t, "balanced", NormalizeStyle("weird"))
}
