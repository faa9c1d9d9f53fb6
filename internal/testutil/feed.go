// Package testutil builds feed archives for tests.
package testutil

import (
	"archive/zip"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

// ZipDir writes every regular file in dir into a new zip archive under the
// test's temp dir and returns its path. Files named in skip are left out.
func ZipDir(t testing.TB, dir string, skip ...string) string {
	t.Helper()
	files := ReadDir(t, dir)
	for _, name := range skip {
		delete(files, name)
	}
	return ZipFiles(t, files)
}

// ZipFiles writes files, keyed by archive name, into a new zip archive.
func ZipFiles(t testing.TB, files map[string]string) string {
	t.Helper()
	out, err := os.CreateTemp(t.TempDir(), "feed-*.zip")
	require.NoError(t, err)
	defer func() { _ = out.Close() }()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	slices.Sort(names)

	zw := zip.NewWriter(out)
	for _, name := range names {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return out.Name()
}

// ReadDir returns the contents of every regular file in dir keyed by name.
func ReadDir(t testing.TB, dir string) map[string]string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	files := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		contents, err := os.ReadFile(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		files[e.Name()] = string(contents)
	}
	return files
}
