package controlsocket

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nova-repository/newsrepo/internal/logging"
	"github.com/nova-repository/newsrepo/internal/pipeline"
	"github.com/nova-repository/newsrepo/internal/queue"
	"github.com/nova-repository/newsrepo/internal/repository/fs"
	"github.com/nova-repository/newsrepo/internal/repository/sqlstore"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()

	db, err := sqlstore.Open(filepath.Join(dir, "repo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	layout := fs.New(filepath.Join(dir, "files"))
	require.NoError(t, layout.EnsureStructure())
	store := sqlstore.New(db, layout)

	q := queue.New(db)
	logger := logging.New("error")
	svc := pipeline.New(pipeline.Deps{Queue: q, Store: store, Logger: logger})

	socketPath := filepath.Join(dir, "control.sock")
	server := New(socketPath, svc, q, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go server.Serve(ctx)
	waitForSocket(t, socketPath)

	return server, socketPath
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := Client(path, Request{Command: "status"}); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("control socket %s never became ready", path)
}

func TestPauseResumeStatusRoundTrip(t *testing.T) {
	_, socketPath := newTestServer(t)

	resp, err := Client(socketPath, Request{Command: "status"})
	require.NoError(t, err)
	require.True(t, resp.OK)
	require.False(t, resp.Status.Paused)

	resp, err = Client(socketPath, Request{Command: "pause"})
	require.NoError(t, err)
	require.True(t, resp.OK)

	resp, err = Client(socketPath, Request{Command: "status"})
	require.NoError(t, err)
	require.True(t, resp.Status.Paused)

	resp, err = Client(socketPath, Request{Command: "resume"})
	require.NoError(t, err)
	require.True(t, resp.OK)

	resp, err = Client(socketPath, Request{Command: "status"})
	require.NoError(t, err)
	require.False(t, resp.Status.Paused)
}

func TestUnknownCommandReturnsError(t *testing.T) {
	_, socketPath := newTestServer(t)

	resp, err := Client(socketPath, Request{Command: "bogus"})
	require.NoError(t, err)
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "unknown command")
}

func TestPauseBulkRequiresBulkID(t *testing.T) {
	_, socketPath := newTestServer(t)

	resp, err := Client(socketPath, Request{Command: "pause_bulk"})
	require.NoError(t, err)
	require.False(t, resp.OK)
}
