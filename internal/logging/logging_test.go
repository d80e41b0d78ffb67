package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/m-mizutani/gt"
)

func TestNewParsesLevel(t *testing.T) {
	logger, closer, err := New(Options{Level: "DEBUG"})
	gt.NoError(t, err)
	defer closer.Close()
	gt.Equal(t, logger.GetLevel(), log.DebugLevel)

	logger, _, err = New(Options{})
	gt.NoError(t, err)
	gt.Equal(t, logger.GetLevel(), log.InfoLevel)

	_, _, err = New(Options{Level: "loud"})
	gt.Error(t, err)
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memsearch.log")
	logger, closer, err := New(Options{File: path, Prefix: "memsearch"})
	gt.NoError(t, err)

	logger.Info("hello file", "key", "value")
	gt.NoError(t, closer.Close())

	b, err := os.ReadFile(path)
	gt.NoError(t, err)
	gt.S(t, string(b)).Contains("hello file")
	gt.S(t, string(b)).Contains("key=value")
}
