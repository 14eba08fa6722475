package rom

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/retroenv/retrogolib/assert"
)

var image = []byte{0x22, 0x04, 0x12, 0x00, 0x00, 0xEE}

func writeGzip(t *testing.T, path string, data []byte) {
	t.Helper()

	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(data)
	assert.NoError(t, err)
	assert.NoError(t, w.Close())
	assert.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func writeZip(t *testing.T, path, name string, data []byte) {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create(name)
	assert.NoError(t, err)
	_, err = f.Write(data)
	assert.NoError(t, err)
	assert.NoError(t, w.Close())
	assert.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestRead(t *testing.T) {
	dir := t.TempDir()

	raw := filepath.Join(dir, "game.ch8")
	assert.NoError(t, os.WriteFile(raw, image, 0o644))

	gz := filepath.Join(dir, "game.ch8.gz")
	writeGzip(t, gz, image)

	upper := filepath.Join(dir, "game.ch8.GZ")
	writeGzip(t, upper, image)

	zipped := filepath.Join(dir, "game.zip")
	writeZip(t, zipped, "game.ch8", image)

	tests := []struct {
		name string
		path string
	}{
		{"raw image", raw},
		{"gzip", gz},
		{"gzip uppercase extension", upper},
		{"zip", zipped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Read(tt.path)
			assert.NoError(t, err)
			assert.Equal(t, tt.path, r.Path)
			assert.Equal(t, filepath.Base(tt.path), r.Name())
			assert.Equal(t, len(image), r.Size())
			if diff := cmp.Diff(image, r.Data); diff != "" {
				t.Errorf("image mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope.ch8"))
	assert.Error(t, err)
}

func TestReadEmptyArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.zip")

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	assert.NoError(t, w.Close())
	assert.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	_, err := Read(path)
	assert.Error(t, err)
}

func TestReadBadGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.gz")
	assert.NoError(t, os.WriteFile(path, []byte("not gzip"), 0o644))

	_, err := Read(path)
	assert.Error(t, err)
}
