package pg

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
)

// RunMigrations aplica en orden todos los *_up.sql del directorio.
// Idempotencia a cargo de los scripts (CREATE TABLE IF NOT EXISTS etc).
func (s *Store) RunMigrations(ctx context.Context, dir string) error {
	return s.apply(ctx, os.DirFS(dir), "_up.sql", false)
}

// RunMigrationsFS es RunMigrations sobre un fs.FS, pensado para el set
// embebido en el binario.
func (s *Store) RunMigrationsFS(ctx context.Context, fsys fs.FS) error {
	return s.apply(ctx, fsys, "_up.sql", false)
}

// RunMigrationsDown aplica los *_down.sql en orden inverso.
func (s *Store) RunMigrationsDown(ctx context.Context, dir string) error {
	return s.apply(ctx, os.DirFS(dir), "_down.sql", true)
}

// RunMigrationsDownFS es RunMigrationsDown sobre un fs.FS.
func (s *Store) RunMigrationsDownFS(ctx context.Context, fsys fs.FS) error {
	return s.apply(ctx, fsys, "_down.sql", true)
}

func (s *Store) apply(ctx context.Context, fsys fs.FS, suffix string, reverse bool) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return err
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(strings.ToLower(e.Name()), suffix) {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	if reverse {
		for i, j := 0, len(files)-1; i < j; i, j = i+1, j-1 {
			files[i], files[j] = files[j], files[i]
		}
	}
	for _, f := range files {
		b, err := fs.ReadFile(fsys, f)
		if err != nil {
			return err
		}
		if _, err := s.pool.Exec(ctx, string(b)); err != nil {
			return fmt.Errorf("exec %s: %w", f, err)
		}
	}
	return nil
}
