package searcher

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/dshills/memsearch-mcp/pkg/types"
)

// skippedDirs are never descended into
var skippedDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
}

// FileSearchResult is the outcome of one file phase run
type FileSearchResult struct {
	Matches       []types.FileMatch
	FilesSearched int      // Files actually read
	Extensions    []string // Normalized allowlist that was applied
	BasePath      string
	Truncated     bool // The walk stopped early because ctx ended
}

// NormalizeExtensions lowercases extensions and strips leading dots. An empty
// list yields the default allowlist.
func NormalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	seen := make(map[string]bool)
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimLeft(strings.TrimSpace(ext), "."))
		if ext == "" || seen[ext] {
			continue
		}
		seen[ext] = true
		out = append(out, ext)
	}
	if len(out) == 0 {
		return append([]string(nil), DefaultFileExtensions...)
	}
	return out
}

// FileSearch walks basePath in lexical order looking for case-insensitive line
// matches of query in files on the extension allowlist. Hidden directories,
// node_modules and vendor are skipped, as are files that are too large,
// unreadable or binary.
func (s *Searcher) FileSearch(ctx context.Context, query string, extensions []string, basePath string, limit int) (*FileSearchResult, error) {
	if limit <= 0 {
		limit = s.cfg.FileLimit
	}
	if basePath == "" {
		basePath = s.cfg.BasePath
	}
	if len(extensions) == 0 {
		extensions = s.cfg.FileExtensions
	}
	exts := NormalizeExtensions(extensions)

	result := &FileSearchResult{
		Matches:    []types.FileMatch{},
		Extensions: exts,
		BasePath:   basePath,
	}

	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return result, nil
	}
	if basePath == "" {
		return result, fmt.Errorf("no base path configured for file search")
	}

	root, err := filepath.Abs(basePath)
	if err != nil {
		return result, fmt.Errorf("resolve base path: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return result, fmt.Errorf("base path not accessible: %w", err)
	}
	if !info.IsDir() {
		return result, fmt.Errorf("base path %s is not a directory", root)
	}

	allowed := make(map[string]bool, len(exts))
	for _, ext := range exts {
		allowed[ext] = true
	}

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			result.Truncated = true
			return fs.SkipAll
		}
		if err != nil {
			// Unreadable entries are skipped silently
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if path != root && (strings.HasPrefix(name, ".") || skippedDirs[name]) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
		if !allowed[ext] {
			return nil
		}

		fi, err := d.Info()
		if err != nil || fi.Size() > s.cfg.MaxFileSize {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil || isBinary(content) {
			return nil
		}
		result.FilesSearched++

		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		for _, m := range matchLines(string(content), needle, s.cfg.MaxHitsPerFile) {
			m.Path = filepath.ToSlash(rel)
			m.FullPath = path
			m.FileType = ext
			m.FileSize = fi.Size()
			result.Matches = append(result.Matches, m)
			if len(result.Matches) >= limit {
				return fs.SkipAll
			}
		}
		return nil
	})
	if walkErr != nil {
		return result, fmt.Errorf("walk %s: %w", root, walkErr)
	}
	return result, nil
}

// isBinary treats NUL bytes or invalid UTF-8 as binary content
func isBinary(content []byte) bool {
	return bytes.IndexByte(content, 0) >= 0 || !utf8.Valid(content)
}

// matchLines returns up to maxHits hits, each with one line of context on either side
func matchLines(content, needle string, maxHits int) []types.FileMatch {
	lines := strings.Split(content, "\n")
	for i := range lines {
		lines[i] = strings.TrimSuffix(lines[i], "\r")
	}

	matches := make([]types.FileMatch, 0, maxHits)
	for i, line := range lines {
		if !strings.Contains(strings.ToLower(line), needle) {
			continue
		}
		start := i - 1
		if start < 0 {
			start = 0
		}
		end := i + 2
		if end > len(lines) {
			end = len(lines)
		}
		matches = append(matches, types.FileMatch{
			Line:      i + 1,
			Snippet:   strings.Join(lines[start:end], "\n"),
			MatchType: types.MatchFile,
		})
		if len(matches) == maxHits {
			break
		}
	}
	return matches
}
