package archive

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteTar(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "export")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("alpha"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("beta"), 0o644))
	require.NoError(t, os.Symlink("/etc", filepath.Join(dir, "escape")))

	buf := &bytes.Buffer{}
	require.NoError(t, WriteTar(buf, dir))

	entries := map[string]string{}
	tr := tar.NewReader(buf)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if hdr.Typeflag == tar.TypeDir {
			entries[hdr.Name] = ""
			continue
		}
		raw, err := io.ReadAll(tr)
		require.NoError(t, err)
		entries[hdr.Name] = string(raw)
	}

	assert.Contains(t, entries, "export/")
	assert.Contains(t, entries, "export/sub/")
	assert.Equal(t, "alpha", entries["export/a.txt"])
	assert.Equal(t, "beta", entries["export/sub/b.txt"])
	// symlinks never enter the archive
	assert.NotContains(t, entries, "export/escape")
}
