// Package rom reads program images from disk, transparently unpacking the
// archive formats ROMs are commonly distributed in.
package rom

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
)

// ROM is a program image ready to load into the machine.
type ROM struct {
	Path string
	Data []byte
}

// Name returns the file name of the image, without the directory part.
func (r *ROM) Name() string {
	return filepath.Base(r.Path)
}

// Size returns the image length in bytes.
func (r *ROM) Size() int {
	return len(r.Data)
}

// Read loads the file at path. Archives (.gz, .zip, .7z) are unpacked and
// the first packed file becomes the image; any other extension is taken as
// a raw image.
func Read(path string) (*ROM, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to load file %q: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		data, err = ungzip(data)
	case ".zip":
		data, err = unzip(data)
	case ".7z":
		data, err = unseven(data)
	default:
		return &ROM{Path: path, Data: data}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to unpack %q: %w", path, err)
	}

	slog.Debug("unpacked rom", "path", path, "n", len(data))
	return &ROM{Path: path, Data: data}, nil
}

func ungzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(r)
}

func unzip(data []byte) ([]byte, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	if len(r.File) == 0 {
		return nil, errors.New("archive is empty")
	}

	f, err := r.File[0].Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return io.ReadAll(f)
}

func unseven(data []byte) ([]byte, error) {
	r, err := sevenzip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	if len(r.File) == 0 {
		return nil, errors.New("archive is empty")
	}

	f, err := r.File[0].Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return io.ReadAll(f)
}
