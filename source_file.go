package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// Errors returned by newSourceFile
var (
	errNoFile         = errors.New("no file to upload")
	errNotRegularFile = errors.New("not a regular file")
)

// sourceFile is the local file to upload and the key it is stored under.
type sourceFile struct {
	fpath, key  string
	size        int64
	contentType string
}

// newSourceFile checks that fpath exists and is a regular file. The key is the file's base name.
func newSourceFile(fpath string) (*sourceFile, error) {
	if fpath == "" {
		return nil, errNoFile
	}

	fi, err := os.Stat(fpath)
	if err != nil {
		return nil, err
	}
	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: %w", fpath, errNotRegularFile)
	}

	return &sourceFile{
		fpath:       fpath,
		key:         filepath.Base(fpath),
		size:        fi.Size(),
		contentType: detectContentType(fpath),
	}, nil
}

func (s *sourceFile) open() (*os.File, error) {
	return os.Open(s.fpath)
}

// detectContentType tries the extension first, then sniffs the content.
func detectContentType(fpath string) string {
	if mt := betterMime(fpath); mt != "" {
		return mt
	}
	if m, err := mimetype.DetectFile(fpath); err == nil {
		return m.String()
	}

	return "application/octet-stream"
}
