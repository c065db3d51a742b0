package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeSaveIOToFile(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "nested", "out.txt")
	require.NoError(t, SafeSaveIOToFile(dst, strings.NewReader("content")))

	raw, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "content", string(raw))

	// overwrite goes through the same tmp-rename path
	require.NoError(t, SafeSaveIOToFile(dst, strings.NewReader("v2")))
	raw, err = os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(raw))

	// no temp leftovers
	ents, err := os.ReadDir(filepath.Dir(dst))
	require.NoError(t, err)
	assert.Len(t, ents, 1)
}
