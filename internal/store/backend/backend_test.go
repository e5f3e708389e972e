package backend

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptoshelf/shelfsync/internal/config"
	"github.com/cryptoshelf/shelfsync/internal/logger"
	"github.com/cryptoshelf/shelfsync/internal/store/httpstore"
	"github.com/cryptoshelf/shelfsync/internal/store/sqlite"
)

func TestOpen_SQLite(t *testing.T) {
	s, err := Open(t.Context(), config.RemoteConfig{
		Kind:       config.RemoteSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "remote.db"),
	}, logger.Discard())
	require.NoError(t, err)
	defer s.Close()

	assert.IsType(t, &sqlite.Store{}, s)
}

func TestOpen_HTTP(t *testing.T) {
	s, err := Open(t.Context(), config.RemoteConfig{Kind: config.RemoteHTTP, BaseURL: "http://localhost:8420"}, logger.Discard())
	require.NoError(t, err)
	defer s.Close()

	assert.IsType(t, &httpstore.Client{}, s)
}

func TestOpen_Unknown(t *testing.T) {
	_, err := Open(t.Context(), config.RemoteConfig{Kind: "mongo"}, logger.Discard())
	assert.Error(t, err)
}
