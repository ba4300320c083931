package rubyenv

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspaceContextCanonicalKey(t *testing.T) {
	dir := t.TempDir()

	a, err := NewWorkspaceContext(dir)
	require.NoError(t, err)
	b, err := NewWorkspaceContext(dir + string(filepath.Separator))
	require.NoError(t, err)
	c, err := NewWorkspaceContext(filepath.Join(dir, "sub", ".."))
	require.NoError(t, err)

	assert.Equal(t, a.Key, b.Key, "equivalent spellings of one folder must share a key")
	assert.Equal(t, a.Key, c.Key)
	assert.Len(t, a.Key, 16)
	assert.Equal(t, filepath.Base(dir), a.Name)
	assert.False(t, a.Default)

	other, err := NewWorkspaceContext(t.TempDir())
	require.NoError(t, err)
	assert.NotEqual(t, a.Key, other.Key)
}

func TestWorkspaceContextRejectsEmpty(t *testing.T) {
	_, err := NewWorkspaceContext("")
	assert.Error(t, err)
}

func TestDefaultWorkspaceContext(t *testing.T) {
	ws := DefaultWorkspaceContext()
	assert.True(t, ws.Default)
	assert.Equal(t, DefaultContextKey, ws.Key)
	assert.Empty(t, ws.Dir, "the default context probes from the process working directory")
}

func TestOverrideKeyLayout(t *testing.T) {
	assert.Equal(t, "selected-ruby-path", DefaultWorkspaceContext().OverrideKey())

	ws, err := NewWorkspaceContext(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "selected-ruby-path:"+ws.Key, ws.OverrideKey())
}

func TestDefinitionKindJSON(t *testing.T) {
	data, err := json.Marshal(Failed())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"error"`)

	var def Definition
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"resolved","version":"3.3.0"}`), &def))
	assert.Equal(t, KindResolved, def.Kind)
	assert.Equal(t, "3.3.0", def.Version)

	assert.Error(t, json.Unmarshal([]byte(`{"kind":"weird"}`), &def))
}
