package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.True(t, c.IsTokenProgram(TokenProgram))
	assert.True(t, c.IsTokenProgram(Token2022Program))
	assert.False(t, c.IsTokenProgram("SomeOtherProgram1111111111111111111111111111"))
	assert.True(t, c.HasNetwork("mainnet"))
	assert.False(t, c.HasNetwork("testnet-9"))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := `
token_programs:
  - CustomProgram111111111111111111111111111111
networks:
  - name: mainnet
    facilitators:
      - Facilitator1111111111111111111111111111111
  - name: devnet
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.True(t, c.IsTokenProgram("CustomProgram111111111111111111111111111111"))
	assert.False(t, c.IsTokenProgram(TokenProgram), "explicit list replaces defaults")
	assert.True(t, c.IsFacilitator("Facilitator1111111111111111111111111111111"))
	assert.False(t, c.IsFacilitator("Unknown"))
}

func TestLoadFile_PartialFallsBackToBuiltins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("networks:\n  - name: devnet\n"), 0o644))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.True(t, c.IsTokenProgram(TokenProgram))
	assert.True(t, c.HasNetwork("devnet"))
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not yaml"), 0o644))
	_, err = LoadFile(path)
	assert.Error(t, err)
}
