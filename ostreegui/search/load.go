package search

import (
	"bufio"
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Load reads an index file. The format is chosen by extension:
//
//	.db, .sqlite, .sqlite3  SQLite database with a packages(name) table
//	.yaml, .yml             a list of names, or a mapping with a packages list
//	anything else           one name per line, # starts a comment
//
// An empty path or a missing file yields a nil index: search then returns no
// results rather than failing.
func Load(path string) (*Index, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		log.WithField("path", path).Warn("Search index not found; search is disabled")
		return nil, nil
	}

	var (
		names []string
		err   error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		names, err = loadSQLite(path)
	case ".yaml", ".yml":
		names, err = loadYAML(path)
	default:
		names, err = loadText(path)
	}
	if err != nil {
		return nil, fmt.Errorf("load search index %s: %w", path, err)
	}

	log.WithFields(log.Fields{"path": path, "names": len(names)}).Debug("Loaded search index")
	return NewIndex(names), nil
}

func loadText(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var names []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	return names, scanner.Err()
}

func loadYAML(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var list []string
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var doc struct {
		Packages []string `yaml:"packages"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc.Packages, nil
}

// sqliteDSN escapes path so names containing ? or # still open.
func sqliteDSN(path, mode string) string {
	return (&url.URL{Scheme: "file", Path: path, RawQuery: "mode=" + mode}).String()
}

func loadSQLite(path string) ([]string, error) {
	db, err := sql.Open("sqlite3", sqliteDSN(path, "ro"))
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Query(`SELECT name FROM packages ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
