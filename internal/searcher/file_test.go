package searcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/memsearch-mcp/pkg/types"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileSearch_SizeCeiling(t *testing.T) {
	root := t.TempDir()
	big := strings.Repeat("filler line\n", (2<<20)/12) + "needle here\n"
	writeFile(t, root, "big.md", big)
	writeFile(t, root, "small.md", strings.Repeat("x\n", 5000)+"needle here\n")

	s, _ := setupTestSearcher(t, nil, DefaultConfig())
	res, err := s.FileSearch(context.Background(), "needle", []string{".md"}, root, 10)
	require.NoError(t, err)

	assert.Equal(t, 1, res.FilesSearched)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "small.md", res.Matches[0].Path)
	assert.Equal(t, "md", res.Matches[0].FileType)
	assert.Equal(t, types.MatchFile, res.Matches[0].MatchType)
	assert.Equal(t, 5001, res.Matches[0].Line)
}

func TestFileSearch_SkipsHiddenVendoredAndBinary(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".git/notes.md", "needle")
	writeFile(t, root, "node_modules/pkg/readme.md", "needle")
	writeFile(t, root, "vendor/lib/readme.md", "needle")
	writeFile(t, root, "data.json", "{\"a\":\"needle\x00\"}")
	writeFile(t, root, "script.go", "needle")
	writeFile(t, root, "docs/guide.txt", "Needle in docs")

	s, _ := setupTestSearcher(t, nil, DefaultConfig())
	res, err := s.FileSearch(context.Background(), "needle", nil, root, 10)
	require.NoError(t, err)

	require.Len(t, res.Matches, 1)
	assert.Equal(t, "docs/guide.txt", res.Matches[0].Path)
	assert.Equal(t, DefaultFileExtensions, res.Extensions)
}

func TestFileSearch_SnippetsAndCaps(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "one\nmatch two\nthree\nmatch four\nmatch five\nmatch six\n")
	writeFile(t, root, "b.md", "match b\n")

	s, _ := setupTestSearcher(t, nil, DefaultConfig())
	ctx := context.Background()

	res, err := s.FileSearch(ctx, "MATCH", []string{"md"}, root, 10)
	require.NoError(t, err)
	require.Len(t, res.Matches, 4, "three hits from a.md then one from b.md")
	assert.Equal(t, "one\nmatch two\nthree", res.Matches[0].Snippet)
	assert.Equal(t, 2, res.Matches[0].Line)
	assert.Equal(t, "b.md", res.Matches[3].Path)

	res, err = s.FileSearch(ctx, "match", []string{"md"}, root, 2)
	require.NoError(t, err)
	assert.Len(t, res.Matches, 2)

	for _, m := range res.Matches {
		assert.True(t, filepath.IsAbs(m.FullPath))
	}
}

func TestFileSearch_Errors(t *testing.T) {
	s, _ := setupTestSearcher(t, nil, DefaultConfig())
	ctx := context.Background()

	_, err := s.FileSearch(ctx, "q", nil, "", 10)
	assert.Error(t, err)

	_, err = s.FileSearch(ctx, "q", nil, filepath.Join(t.TempDir(), "missing"), 10)
	assert.Error(t, err)

	res, err := s.FileSearch(ctx, " ", nil, "", 10)
	require.NoError(t, err)
	assert.Empty(t, res.Matches)
}

func TestFileSearch_CancelledContext(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "needle")

	s, _ := setupTestSearcher(t, nil, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := s.FileSearch(ctx, "needle", nil, root, 10)
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Empty(t, res.Matches)
}

func TestNormalizeExtensions(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"empty uses defaults", nil, DefaultFileExtensions},
		{"strips dots and lowercases", []string{".MD", "txt"}, []string{"md", "txt"}},
		{"dedups", []string{"md", ".md", " "}, []string{"md"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeExtensions(tt.in))
		})
	}
}
