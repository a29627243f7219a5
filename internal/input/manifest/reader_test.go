package manifest

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"centralrepo/pkg/models"
)

const sampleManifest = `{"id": 1, "name": "a.txt", "parent_path": "/docs", "md5": "ABC123", "size": 12}
not json

{"file": {"id": "2", "name": "b.dll", "directory": "/win", "hash": {"md5": "ff00"}, "known": "known"}}
{"id": 3, "name": "slack", "type": "slack"}
{"md5": "nameless"}
`

func TestReadFilesParsesBothLayouts(t *testing.T) {
	var got []*models.File
	n, err := ReadFiles(context.Background(), strings.NewReader(sampleManifest), func(f *models.File) error {
		got = append(got, f)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, got, 3)

	assert.Equal(t, int64(1), got[0].ID())
	assert.Equal(t, "/docs/a.txt", got[0].Path())
	assert.Equal(t, "abc123", got[0].MD5())
	assert.Equal(t, int64(12), got[0].Size())

	assert.Equal(t, int64(2), got[1].ID())
	assert.Equal(t, "/win/b.dll", got[1].Path())
	assert.Equal(t, models.Known, got[1].Known())

	assert.Equal(t, models.FileSlack, got[2].Type())
}

func TestReadFilesStopsOnCallbackError(t *testing.T) {
	stop := io.ErrUnexpectedEOF
	n, err := ReadFiles(context.Background(), strings.NewReader(sampleManifest), func(*models.File) error { return stop })
	assert.ErrorIs(t, err, stop)
	assert.Zero(t, n)
}

func TestReadHashSet(t *testing.T) {
	input := `# exported hash set
MD5,Comment
d41d8cd98f00b204e9800998ecf8427e,empty file
"0CC175B9C0F1B6A831C399E269772661"	single a
not-a-hash
900150983cd24fb0d6963f7d28e17f72
`
	var got []HashEntry
	n, err := ReadHashSet(strings.NewReader(input), func(e HashEntry) error {
		got = append(got, e)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []HashEntry{
		{MD5: "d41d8cd98f00b204e9800998ecf8427e", Comment: "empty file"},
		{MD5: "0cc175b9c0f1b6a831c399e269772661", Comment: "single a"},
		{MD5: "900150983cd24fb0d6963f7d28e17f72"},
	}, got)
}

func TestOpenDecompressesByExtension(t *testing.T) {
	dir := t.TempDir()
	line := `{"name":"x","md5":"aa"}` + "\n"

	gzPath := filepath.Join(dir, "files.jsonl.gz")
	gf, err := os.Create(gzPath)
	require.NoError(t, err)
	gw := gzip.NewWriter(gf)
	_, err = gw.Write([]byte(line))
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	require.NoError(t, gf.Close())

	zstPath := filepath.Join(dir, "files.jsonl.zst")
	zf, err := os.Create(zstPath)
	require.NoError(t, err)
	zw, err := zstd.NewWriter(zf)
	require.NoError(t, err)
	_, err = zw.Write([]byte(line))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, zf.Close())

	plainPath := filepath.Join(dir, "files.jsonl")
	require.NoError(t, os.WriteFile(plainPath, []byte(line), 0644))

	for _, p := range []string{gzPath, zstPath, plainPath} {
		r, err := Open(p)
		require.NoError(t, err, p)
		data, err := io.ReadAll(r)
		require.NoError(t, err, p)
		require.NoError(t, r.Close())
		assert.Equal(t, line, string(data), p)
	}
}
