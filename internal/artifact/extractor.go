package artifact

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// MaxExtractedSize bounds the total uncompressed size of one archive (2GB)
const MaxExtractedSize = 2 << 30

var (
	// ErrEmptyArchive is returned for an archive without entries
	ErrEmptyArchive = errors.New("archive is empty")

	// ErrUnsafePath is returned for an entry that would land outside the target
	ErrUnsafePath = errors.New("archive entry escapes the target directory")
)

// Extractor unpacks zip archives
type Extractor struct {
	maxSize int64
}

// NewExtractor creates an extractor with the default size limit
func NewExtractor() *Extractor {
	return &Extractor{maxSize: MaxExtractedSize}
}

// Extract unpacks data into dir. A single top-level directory shared by all
// entries is stripped.
func (e *Extractor) Extract(data []byte, dir string) error {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if errors.Is(err, zip.ErrInsecurePath) {
		return fmt.Errorf("%w: %v", ErrUnsafePath, err)
	}
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	if len(reader.File) == 0 {
		return ErrEmptyArchive
	}

	prefix := commonTopDir(reader.File)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}

	var written int64
	for _, file := range reader.File {
		name, err := entryName(file.Name, prefix)
		if err != nil {
			return err
		}
		if name == "" {
			continue
		}

		dest := filepath.Join(dir, filepath.FromSlash(name))
		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o750); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", name, err)
			}
			continue
		}

		n, err := e.writeFile(file, dest, e.maxSize-written)
		if err != nil {
			return fmt.Errorf("failed to extract %s: %w", name, err)
		}
		written += n
	}
	return nil
}

func (e *Extractor) writeFile(file *zip.File, dest string, budget int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return 0, err
	}

	src, err := file.Open()
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = src.Close()
	}()

	mode := file.Mode().Perm() | 0o600
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode) //nolint:gosec // dest is validated by entryName
	if err != nil {
		return 0, err
	}

	n, copyErr := io.Copy(out, io.LimitReader(src, budget+1))
	closeErr := out.Close()
	if copyErr != nil {
		return n, copyErr
	}
	if n > budget {
		return n, fmt.Errorf("archive exceeds %d bytes uncompressed", e.maxSize)
	}
	return n, closeErr
}

// commonTopDir returns "name/" when every entry lives under one directory
func commonTopDir(files []*zip.File) string {
	var top string
	for _, file := range files {
		name := strings.TrimPrefix(path.Clean("/"+file.Name), "/")
		first, _, nested := strings.Cut(name, "/")
		if !nested && !file.FileInfo().IsDir() {
			// a file at the archive root
			return ""
		}
		if top == "" {
			top = first
		} else if top != first {
			return ""
		}
	}
	if top == "" {
		return ""
	}
	return top + "/"
}

func entryName(raw, prefix string) (string, error) {
	if strings.Contains(raw, `\`) || path.IsAbs(raw) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, raw)
	}
	cleaned := path.Clean(raw)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, raw)
	}
	if cleaned == "." {
		return "", nil
	}
	if prefix != "" {
		if cleaned+"/" == prefix {
			return "", nil
		}
		cleaned = strings.TrimPrefix(cleaned, prefix)
	}
	if !filepath.IsLocal(filepath.FromSlash(cleaned)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, raw)
	}
	return cleaned, nil
}
