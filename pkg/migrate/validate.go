package migrate

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"strings"
)

var migrationNameRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

const (
	annotationUp    = "-- +goose Up"
	annotationDown  = "-- +goose Down"
	annotationBegin = "-- +goose StatementBegin"
	annotationEnd   = "-- +goose StatementEnd"
)

// ValidateDir checks the migrations on disk at dir.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("migrations dir %q: %w", dir, err)
	}
	return ValidateFS(os.DirFS(dir))
}

// ValidateFS checks names, version uniqueness and goose annotations for every
// .sql file at the root of fsys.
func ValidateFS(fsys fs.FS) error {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}

	versions := make(map[string]string, len(names))
	for _, name := range names {
		match := migrationNameRe.FindStringSubmatch(name)
		if match == nil {
			return fmt.Errorf("invalid migration filename %q (expected %s_name.sql)", name, versionLayout)
		}
		if _, err := ParseVersion(match[1]); err != nil {
			return fmt.Errorf("migration %q: %w", name, err)
		}
		if prev, ok := versions[match[1]]; ok {
			return fmt.Errorf("duplicate migration version %s in %q and %q", match[1], prev, name)
		}
		versions[match[1]] = name

		file, err := fsys.Open(name)
		if err != nil {
			return fmt.Errorf("open %q: %w", name, err)
		}
		err = checkAnnotations(file)
		file.Close()
		if err != nil {
			return fmt.Errorf("migration %q: %w", path.Base(name), err)
		}
	}
	return nil
}

func checkAnnotations(r fs.File) error {
	var (
		sawUp, sawDown bool
		open           bool
	)

	scanner := bufio.NewScanner(r)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		switch text {
		case annotationUp:
			if sawUp {
				return fmt.Errorf("line %d: repeated %q", line, annotationUp)
			}
			sawUp = true
		case annotationDown:
			if !sawUp {
				return fmt.Errorf("line %d: %q before %q", line, annotationDown, annotationUp)
			}
			if open {
				return fmt.Errorf("line %d: %q inside an open statement block", line, annotationDown)
			}
			sawDown = true
		case annotationBegin:
			if open {
				return fmt.Errorf("line %d: nested %q", line, annotationBegin)
			}
			open = true
		case annotationEnd:
			if !open {
				return fmt.Errorf("line %d: %q without matching begin", line, annotationEnd)
			}
			open = false
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read: %w", err)
	}

	switch {
	case !sawUp:
		return fmt.Errorf("missing %q", annotationUp)
	case !sawDown:
		return fmt.Errorf("missing %q", annotationDown)
	case open:
		return fmt.Errorf("unterminated %q", annotationBegin)
	}
	return nil
}
