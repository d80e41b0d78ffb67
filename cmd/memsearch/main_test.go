package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/dshills/memsearch-mcp/internal/storage"
)

func baseArgs(t *testing.T) (args []string, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "memories.db")
	return []string{
		"memsearch",
		"--config", filepath.Join(dir, "missing.yaml"),
		"--database", dbPath,
		"--base-path", dir,
		"--embedding-provider", "local",
		"--expansion-provider", "none",
		"--log-level", "error",
	}, dbPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.Reader = strings.NewReader("")
	err := app.Run(args)
	return out.String(), err
}

func TestGlobalFlags(t *testing.T) {
	app := newApp()

	envVars := make(map[string][]string)
	for _, flag := range app.Flags {
		if f, ok := flag.(*cli.StringFlag); ok {
			envVars[f.Name] = f.EnvVars
		}
	}

	t.Run("environment overrides are wired", func(t *testing.T) {
		assert.Equal(t, []string{"MEMORY_SEARCH_DATABASE_PATH"}, envVars["database"])
		assert.Equal(t, []string{"MEMORY_SEARCH_BASE_PATH"}, envVars["base-path"])
		assert.Equal(t, []string{"MEMORY_SEARCH_ACTOR_ID"}, envVars["actor-id"])
		assert.Equal(t, []string{"OLLAMA_URL"}, envVars["ollama-url"])
		assert.Equal(t, []string{"MEMORY_SEARCH_MODEL"}, envVars["model"])
		assert.Equal(t, []string{"MEMORY_SEARCH_EMBEDDING_MODEL"}, envVars["embedding-model"])
	})

	t.Run("serve is the default command", func(t *testing.T) {
		assert.Equal(t, "serve", app.DefaultCommand)
	})
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "memsearch", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version: dev")
	assert.Contains(t, out, "Build Mode: "+storage.BuildMode)
	assert.Contains(t, out, "SQLite Driver: "+storage.DriverName)
}

func TestAddAndStatus(t *testing.T) {
	args, dbPath := baseArgs(t)

	out, err := run(t, append(args, "add", "--type", "insight", "memory", "crisis", "handling")...)
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	require.NotEmpty(t, id)

	store, err := storage.NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	rec, err := store.GetMemory(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "memory crisis handling", rec.Content)
	assert.Equal(t, "insight", rec.Type)
	assert.Equal(t, defaultAuthor, rec.AuthorID)
	require.NoError(t, store.Close())

	out, err = run(t, append(args, "status")...)
	require.NoError(t, err)

	var report map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.EqualValues(t, 1, report["total_memories"])
	assert.EqualValues(t, 0, report["embedded_memories"])
	assert.Equal(t, true, report["embedder_reachable"])

	caps := report["capabilities"].(map[string]interface{})
	assert.Equal(t, true, caps["keyword_search"])
	assert.Equal(t, false, caps["llm_expansion"])
}

func TestAddUsesActorFromEnvironment(t *testing.T) {
	t.Setenv("MEMORY_SEARCH_ACTOR_ID", "agent-7")
	args, dbPath := baseArgs(t)

	out, err := run(t, append(args, "add", "scoped note")...)
	require.NoError(t, err)

	store, err := storage.NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	defer store.Close()

	rec, err := store.GetMemory(context.Background(), strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "agent-7", rec.AuthorID)
}

func TestAddRejectsEmptyContent(t *testing.T) {
	args, _ := baseArgs(t)
	_, err := run(t, append(args, "add")...)
	require.Error(t, err)
}

func TestEmbedCommand(t *testing.T) {
	args, _ := baseArgs(t)
	for _, content := range []string{"first note", "second note"} {
		_, err := run(t, append(args, "add", content)...)
		require.NoError(t, err)
	}

	out, err := run(t, append(args, "embed")...)
	require.NoError(t, err)
	assert.Contains(t, out, "processed=2 stored=2")

	out, err = run(t, append(args, "embed")...)
	require.NoError(t, err)
	assert.Contains(t, out, "processed=0")
}
