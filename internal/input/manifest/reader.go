// Package manifest reads file manifests (JSON lines, one file per line) and
// hash-set lists, optionally gzip or zstd compressed.
package manifest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"centralrepo/internal/logger"
	"centralrepo/pkg/models"
)

const maxLineSize = 1 << 20

var md5Pattern = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)

// Open opens path and decompresses it by extension (.gz, .zst).
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".gz"):
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open gzip %s: %w", path, err)
		}
		return &stackedReader{Reader: zr, closers: []io.Closer{zr, f}}, nil
	case strings.HasSuffix(lower, ".zst"), strings.HasSuffix(lower, ".zstd"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open zstd %s: %w", path, err)
		}
		return &stackedReader{Reader: zr, closers: []io.Closer{zstdCloser{zr}, f}}, nil
	default:
		return f, nil
	}
}

type stackedReader struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedReader) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type zstdCloser struct{ d *zstd.Decoder }

func (z zstdCloser) Close() error {
	z.d.Close()
	return nil
}

// ReadFiles parses every manifest line of r and passes it to fn. Malformed
// lines are logged and skipped; an error from fn stops the read.
func ReadFiles(ctx context.Context, r io.Reader, fn func(*models.File) error) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)

	count, lineNo := 0, 0
	for sc.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return count, err
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		f, err := ParseFile([]byte(line))
		if err != nil {
			logger.Warnf("Skipping manifest line %d: %v", lineNo, err)
			continue
		}
		if err := fn(f); err != nil {
			return count, err
		}
		count++
	}
	return count, sc.Err()
}

// HashEntry is one line of a hash set.
type HashEntry struct {
	MD5     string
	Comment string
}

// ReadHashSet reads MD5 hashes, one per line, optionally followed by a comma
// or tab and a comment. Blank lines, '#' comments, headers and invalid hashes
// are skipped.
func ReadHashSet(r io.Reader, fn func(HashEntry) error) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)

	count := 0
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		hash, comment := line, ""
		if i := strings.IndexAny(line, ",\t"); i >= 0 {
			hash, comment = strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:])
		}
		hash = strings.Trim(hash, `"`)
		if !md5Pattern.MatchString(hash) {
			continue
		}
		if err := fn(HashEntry{MD5: strings.ToLower(hash), Comment: strings.Trim(comment, `"`)}); err != nil {
			return count, err
		}
		count++
	}
	return count, sc.Err()
}
