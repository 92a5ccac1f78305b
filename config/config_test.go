package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrdl/chibi"
)

func TestLoadMissing(t *testing.T) {
	f := New(filepath.Join(t.TempDir(), "chibi.json"))
	var cfg chibi.Config
	found, err := f.Load(&cfg)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLoadWithComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chibi.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
	// bigger goblins
	"customizePresets": [
		{"type": "Name", "value": "Goblin", "scale": 2, "enabled": true}, /* effects off */
		{"type": "DataID", "value": "42", "scale": 0.5, "scaleVfx": true}
	]
}`), 0o644))

	var cfg chibi.Config
	found, err := New(path).Load(&cfg)
	require.NoError(t, err)
	assert.True(t, found)
	require.Len(t, cfg.Rules, 2)
	assert.Equal(t, chibi.Rule{Field: chibi.FieldName, Value: "Goblin", Scale: 2, Enabled: true}, *cfg.Rules[0])
	assert.Equal(t, chibi.FieldDataID, cfg.Rules[1].Field)
	assert.True(t, cfg.Rules[1].ScaleEffect)
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chibi.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"customizePresets": [{"type": "Height"}]}`), 0o644))

	var cfg chibi.Config
	_, err := New(path).Load(&cfg)
	assert.ErrorContains(t, err, "Height")
}

func TestSaveReload(t *testing.T) {
	dir := t.TempDir()
	f := New(filepath.Join(dir, "nested", "chibi.json"))

	store := chibi.NewRuleStore(f, nil)
	_, err := store.Add(&chibi.Rule{Field: chibi.FieldModelCharaID, Value: "7", Scale: 1.5, Enabled: true})
	require.NoError(t, err)

	reloaded := chibi.NewRuleStore(f, nil)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, store.Rules(), reloaded.Rules())

	entries, err := os.ReadDir(filepath.Join(dir, "nested"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must be gone")
}
