// Package storage reads raw sensor records from the local filesystem
// or an object store. Remote reads land in a scratch directory; the
// caller owns and removes every returned temp file. Records compressed
// with gzip or packed into single-entry zip archives are transparently
// unpacked.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/yeka/zip"

	"sensor-replay/pkg/database"
)

// Reader fetches one record to a local path. temp reports whether the
// caller must remove the file after use.
type Reader interface {
	ReadRecord(ctx context.Context, locator string) (path string, temp bool, err error)
}

// RecordLocator builds the storage locator for a record: "bucket key"
// for object-store records, a root-relative path otherwise.
func RecordLocator(rec *database.Record) string {
	if rec.Bucket != "" {
		return rec.Bucket + " " + rec.Path
	}
	return rec.Path
}

type FSReader struct {
	Root       string
	ScratchDir string
}

func (r *FSReader) ReadRecord(_ context.Context, locator string) (string, bool, error) {
	full := filepath.Join(r.Root, locator)
	switch {
	case strings.HasSuffix(full, ".gz"):
		path, err := gunzipToScratch(full, r.ScratchDir)
		return path, err == nil, err
	case strings.HasSuffix(full, ".zip"):
		path, err := unzipToScratch(full, r.ScratchDir)
		return path, err == nil, err
	default:
		if _, err := os.Stat(full); err != nil {
			return "", false, err
		}
		return full, false, nil
	}
}

func gunzipToScratch(path, scratch string) (string, error) {
	in, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer in.Close()

	gz, err := gzip.NewReader(in)
	if err != nil {
		return "", fmt.Errorf("opening gzip record '%s': %w", path, err)
	}
	defer gz.Close()

	return spillToScratch(gz, scratch)
}

func unzipToScratch(path, scratch string) (string, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("opening zip record '%s': %w", path, err)
	}
	defer archive.Close()

	if len(archive.File) == 0 {
		return "", fmt.Errorf("zip record '%s' is empty", path)
	}
	// Single-entry archives only, extra entries are ignored
	entry, err := archive.File[0].Open()
	if err != nil {
		return "", err
	}
	defer entry.Close()

	return spillToScratch(entry, scratch)
}

func spillToScratch(src io.Reader, scratch string) (string, error) {
	out, err := os.CreateTemp(scratch, "record-*")
	if err != nil {
		return "", err
	}
	_, err = io.Copy(out, src)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(out.Name())
		return "", err
	}
	return out.Name(), nil
}
