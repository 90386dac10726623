package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"library-circulation/barcode"
	"library-circulation/library"
)

const sampleManifest = `
books:
  - title: Dune
    author: Frank Herbert
    genre: Science Fiction
    shelf_location: F-12
    categories: [classics, sci-fi]
  - title: ""
    author: Nobody
  - title: Emma
    author: Jane Austen
    categories: [classics]
`

func TestImportManifest(t *testing.T) {
	ctx := context.Background()
	mgr, err := library.NewLibraryManager(library.DriverSQLite, filepath.Join(t.TempDir(), "import.db"))
	require.NoError(t, err)
	defer mgr.Close()

	imported, err := importManifest(ctx, mgr, strings.NewReader(sampleManifest), zaptest.NewLogger(t))
	require.Error(t, err, "the untitled entry fails")
	assert.Contains(t, err.Error(), "entry 2")

	require.Len(t, imported, 2)
	assert.Equal(t, "Dune", imported[0].Title)
	assert.Equal(t, "Emma", imported[1].Title)
	for _, r := range imported {
		assert.True(t, barcode.Validate(r.Barcode), r.Barcode)
	}

	dune, err := mgr.LookupBook(ctx, imported[0].Barcode)
	require.NoError(t, err)
	assert.Equal(t, "F-12", dune.ShelfLocation)

	counts, err := mgr.CategoryCounts(ctx, 0)
	require.NoError(t, err)
	got := map[string]int{}
	for _, c := range counts {
		got[c.Name] = c.Books
	}
	assert.Equal(t, map[string]int{"classics": 2, "sci-fi": 1}, got)
}

func TestImportManifestRejectsGarbage(t *testing.T) {
	mgr, err := library.NewLibraryManager(library.DriverSQLite, filepath.Join(t.TempDir(), "import.db"))
	require.NoError(t, err)
	defer mgr.Close()

	_, err = importManifest(context.Background(), mgr, strings.NewReader("books: {"), zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "parse manifest")

	imported, err := importManifest(context.Background(), mgr, strings.NewReader(""), zaptest.NewLogger(t))
	assert.NoError(t, err)
	assert.Empty(t, imported)
}

func TestRemoveDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.db")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(path+"-wal", []byte("x"), 0o600))

	removeDatabase(path, zaptest.NewLogger(t))

	_, err := os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(path + "-wal")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
