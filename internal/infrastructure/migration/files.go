package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"
)

const (
	upSuffix      = ".up.sql"
	downSuffix    = ".down.sql"
	versionLayout = "20060102150405"
)

var (
	fileNamePattern = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.(up|down)\.sql$`)
	nonWord         = regexp.MustCompile(`[^a-z0-9]+`)
)

var headerTemplate = template.Must(template.New("header").Parse(
	`-- Migration: {{.Name}}{{if .Down}} (rollback){{end}}
-- Created: {{.Created}}
-- Description: {{.Description}}

`))

// Entry is one versioned migration pair on disk
type Entry struct {
	Version uint64
	Name    string
	UpPath  string
	// DownPath is empty when the rollback file is missing
	DownPath string
}

// ListMigrations returns the migrations in dir ordered by version. A
// missing directory holds no migrations; a down file without its up file
// or a malformed name is an error.
func ListMigrations(dir string) ([]Entry, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	byVersion := make(map[uint64]*Entry)
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".sql") {
			continue
		}
		m := fileNamePattern.FindStringSubmatch(f.Name())
		if m == nil {
			return nil, fmt.Errorf("malformed migration file name %q", f.Name())
		}
		version, _ := strconv.ParseUint(m[1], 10, 64)
		e, ok := byVersion[version]
		if !ok {
			e = &Entry{Version: version, Name: m[2]}
			byVersion[version] = e
		}
		if e.Name != m[2] {
			return nil, fmt.Errorf("version %d is used by both %q and %q", version, e.Name, m[2])
		}
		path := filepath.Join(dir, f.Name())
		if m[3] == "up" {
			e.UpPath = path
		} else {
			e.DownPath = path
		}
	}

	entries := make([]Entry, 0, len(byVersion))
	for _, e := range byVersion {
		if e.UpPath == "" {
			return nil, fmt.Errorf("migration %d_%s has no up file", e.Version, e.Name)
		}
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Version < entries[j].Version })
	return entries, nil
}

// Scaffold writes an empty up/down pair named after name and versioned by
// now, and returns it
func Scaffold(dir, name, description string, now time.Time) (Entry, error) {
	slug := Slug(name)
	if slug == "" {
		return Entry{}, fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Entry{}, fmt.Errorf("failed to create migrations directory: %w", err)
	}

	now = now.UTC()
	version, _ := strconv.ParseUint(now.Format(versionLayout), 10, 64)
	base := filepath.Join(dir, fmt.Sprintf("%d_%s", version, slug))
	e := Entry{Version: version, Name: slug, UpPath: base + upSuffix, DownPath: base + downSuffix}

	data := struct {
		Name, Created, Description string
		Down                       bool
	}{Name: slug, Created: now.Format(time.RFC3339), Description: description}

	if err := writeHeader(e.UpPath, data); err != nil {
		return Entry{}, err
	}
	data.Down = true
	if err := writeHeader(e.DownPath, data); err != nil {
		_ = os.Remove(e.UpPath)
		return Entry{}, err
	}
	return e, nil
}

// Slug lowercases name and joins its words with underscores
func Slug(name string) string {
	return strings.Trim(nonWord.ReplaceAllString(strings.ToLower(name), "_"), "_")
}

func writeHeader(path string, data any) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	if err := headerTemplate.Execute(f, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
