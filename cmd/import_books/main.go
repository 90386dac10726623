// Command import_books loads a catalog from a YAML manifest and assigns each
// book a fresh barcode.
//
// Manifest format:
//
//	books:
//	  - title: Dune
//	    author: Frank Herbert
//	    isbn: "9780441013593"
//	    genre: Science Fiction
//	    shelf_location: F-12
//	    categories: [classics, sci-fi]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"library-circulation/internal/config"
	"library-circulation/internal/logging"
	"library-circulation/library"
)

type manifestBook struct {
	library.NewBook `yaml:",inline"`
	Categories      []string `yaml:"categories"`
}

type manifest struct {
	Books []manifestBook `yaml:"books"`
}

// importResult is one imported book.
type importResult struct {
	Title   string
	Barcode string
}

var (
	configPath string
	reset      bool
)

var rootCmd = &cobra.Command{
	Use:          "import_books <manifest.yaml>",
	Short:        "Import books from a YAML manifest",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		log, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		if reset {
			removeDatabase(cfg.Database.Path, log)
		}

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		mgr, err := library.NewLibraryManager(cfg.Database.Driver, cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer mgr.Close()
		mgr.SetBarcodePrefix(cfg.Barcode.Prefix)

		imported, err := importManifest(cmd.Context(), mgr, f, log)
		for _, r := range imported {
			fmt.Fprintf(cmd.OutOrStdout(), "%-16s %s\n", r.Barcode, r.Title)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d book(s)\n", len(imported))
		return err
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "library.yaml", "Path to the YAML config file")
	rootCmd.Flags().BoolVar(&reset, "reset", false, "Delete the existing database before importing")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// removeDatabase deletes the database file and its WAL companions.
func removeDatabase(path string, log *zap.Logger) {
	for _, file := range []string{path, path + "-shm", path + "-wal"} {
		if err := os.Remove(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("could not remove database file", zap.String("file", file), zap.Error(err))
		}
	}
}

// importManifest adds every book in the manifest. A failing entry is logged
// and skipped; the returned error joins all failures.
func importManifest(ctx context.Context, mgr *library.LibraryManager, r io.Reader, log *zap.Logger) ([]importResult, error) {
	var m manifest
	if err := yaml.NewDecoder(r).Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	var (
		imported []importResult
		errs     []error
	)
	for i, entry := range m.Books {
		book, err := mgr.AddBook(ctx, entry.NewBook)
		if err != nil {
			log.Warn("skipping book", zap.Int("entry", i+1), zap.String("title", entry.Title), zap.Error(err))
			errs = append(errs, fmt.Errorf("entry %d (%q): %w", i+1, entry.Title, err))
			continue
		}
		for _, cat := range entry.Categories {
			if err := mgr.TagBook(ctx, book.ID, cat); err != nil {
				log.Warn("tag failed", zap.Int64("book_id", book.ID), zap.String("category", cat), zap.Error(err))
				errs = append(errs, fmt.Errorf("entry %d: tag %q: %w", i+1, cat, err))
			}
		}
		log.Debug("imported book", zap.Int64("book_id", book.ID), zap.String("barcode", book.Barcode))
		imported = append(imported, importResult{Title: book.Title, Barcode: book.Barcode})
	}
	return imported, errors.Join(errs...)
}
