// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/gzip"
)

// DefaultMaxBytes bounds the total extracted size when no limit is set.
const DefaultMaxBytes int64 = 512 << 20

// SingleFileName is the name given to a gzip-compressed single-file
// submission, which carries no file name of its own.
const SingleFileName = "main.tex"

// Extraction errors. All of them classify as extraction failures.
var (
	ErrUnsafePath  = errors.New("unsafe archive entry")
	ErrTooLarge    = errors.New("archive exceeds size limit")
	ErrUnsupported = errors.New("unrecognized archive format")
)

// File is one regular file written by Extract.
type File struct {
	// Path is slash-separated and relative to the extraction directory.
	Path string
	Size int64
}

// Extract unpacks data into dir. It accepts a gzip-compressed tar, a plain
// tar, a gzip-compressed single file (written as main.tex) and an
// uncompressed LaTeX file. Entries that would escape dir, links and
// archives larger than maxBytes are rejected. The returned files are
// sorted by path.
func Extract(ctx context.Context, data []byte, dir string, maxBytes int64) ([]File, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	var r io.Reader = bytes.NewReader(data)
	gzipped := len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
	if gzipped {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	br := bufio.NewReaderSize(r, 1024)
	head, _ := br.Peek(512)

	var files []File
	var err error
	switch {
	case isTar(head):
		files, err = extractTar(ctx, br, dir, maxBytes)
	case gzipped || looksLikeLaTeX(head):
		var f File
		f, err = writeFile(br, dir, SingleFileName, maxBytes)
		files = []File{f}
	default:
		return nil, ErrUnsupported
	}
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// isTar reports whether head starts with a tar header. The ustar magic at
// offset 257 is checked first; old V7 headers carry no magic, so failing
// that the first block is parsed, which validates its checksum.
func isTar(head []byte) bool {
	if len(head) >= 262 && string(head[257:262]) == "ustar" {
		return true
	}
	if len(head) < 512 {
		return false
	}
	_, err := tar.NewReader(bytes.NewReader(head[:512])).Next()
	return err == nil
}

func looksLikeLaTeX(head []byte) bool {
	return bytes.Contains(head, []byte(`\documentclass`)) ||
		bytes.Contains(head, []byte(`\documentstyle`)) ||
		bytes.Contains(head, []byte(`\begin{document}`))
}

func extractTar(ctx context.Context, r io.Reader, dir string, maxBytes int64) ([]File, error) {
	tr := tar.NewReader(r)
	var files []File
	// seen indexes files by path; a repeated entry overwrites the earlier one.
	seen := make(map[string]int)
	remaining := maxBytes
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			return files, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading tar header: %w", err)
		}

		name, err := safeName(hdr.Name)
		if err != nil {
			return nil, err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if name == "." {
				continue
			}
			if err := os.MkdirAll(filepath.Join(dir, filepath.FromSlash(name)), 0o755); err != nil {
				return nil, fmt.Errorf("creating directory %s: %w", name, err)
			}
		case tar.TypeReg:
			prev, dup := seen[name]
			if dup {
				remaining += files[prev].Size
			}
			if hdr.Size > remaining {
				return nil, fmt.Errorf("%s: %w", name, ErrTooLarge)
			}
			f, err := writeFile(tr, dir, name, remaining)
			if err != nil {
				return nil, err
			}
			remaining -= f.Size
			if dup {
				files[prev] = f
			} else {
				seen[name] = len(files)
				files = append(files, f)
			}
		case tar.TypeSymlink, tar.TypeLink:
			return nil, fmt.Errorf("%s: link entries not allowed: %w", name, ErrUnsafePath)
		default:
			// Devices, fifos and extended headers carry no content to convert.
		}
	}
}

// safeName cleans an entry name and rejects absolute paths and anything
// that climbs out of the extraction directory.
func safeName(raw string) (string, error) {
	name := path.Clean(filepath.ToSlash(raw))
	if path.IsAbs(name) || !filepath.IsLocal(filepath.FromSlash(name)) {
		return "", fmt.Errorf("%q: %w", raw, ErrUnsafePath)
	}
	return name, nil
}

func writeFile(r io.Reader, dir, name string, limit int64) (File, error) {
	target := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return File{}, fmt.Errorf("creating directory for %s: %w", name, err)
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return File{}, fmt.Errorf("creating %s: %w", name, err)
	}
	n, err := io.Copy(out, io.LimitReader(r, limit+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return File{}, fmt.Errorf("writing %s: %w", name, err)
	}
	if n > limit {
		return File{}, fmt.Errorf("%s: %w", name, ErrTooLarge)
	}
	return File{Path: name, Size: n}, nil
}
