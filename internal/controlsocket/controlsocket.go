// Package controlsocket implements the headless service's control
// plane: a Unix domain socket accepting newline-delimited JSON
// requests (pause, resume, status, pause_bulk, resume_bulk) so a
// second CLI invocation can steer an already-running `service start`
// process.
//
// Built directly on net.Listener — the narrow protocol framing
// (newline-delimited JSON request then one JSON response per
// connection) follows the same encoding/json convention the rest of
// this codebase uses for on-disk config and queue task parameters,
// rather than introducing an RPC framework for five verbs.
package controlsocket

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/nova-repository/newsrepo/internal/apperr"
	"github.com/nova-repository/newsrepo/internal/pipeline"
	"github.com/nova-repository/newsrepo/internal/queue"
)

// Request is one newline-delimited JSON control message.
type Request struct {
	Command string `json:"command"`
	BulkID  string `json:"bulk_id,omitempty"`
}

// Response is the single JSON reply written back before the
// connection is closed.
type Response struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Status  *Status `json:"status,omitempty"`
}

// Status reports the service's current condition for the "status" command.
type Status struct {
	Paused bool `json:"paused"`
}

// Server listens on a Unix domain socket and dispatches control
// requests against a running pipeline.Service and queue.Queue.
type Server struct {
	path     string
	pipeline *pipeline.Service
	queue    *queue.Queue
	logger   *slog.Logger

	mu       sync.Mutex
	listener net.Listener
}

func New(path string, svc *pipeline.Service, q *queue.Queue, logger *slog.Logger) *Server {
	return &Server{path: path, pipeline: svc, queue: q, logger: logger}
}

// Serve removes any stale socket file, listens, and accepts
// connections until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return apperr.Wrap(apperr.Internal, "remove stale control socket", err)
	}

	listener, err := net.Listen("unix", s.path)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "listen on control socket", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("control socket accept failed", "error", err)
			continue
		}
		go s.handle(ctx, conn)
	}
}

func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return
	}

	var req Request
	enc := json.NewEncoder(conn)
	if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
		enc.Encode(Response{OK: false, Error: "invalid request: " + err.Error()})
		return
	}

	resp := s.dispatch(ctx, req)
	if err := enc.Encode(resp); err != nil {
		s.logger.Warn("control socket write failed", "error", err)
	}
}

func (s *Server) dispatch(ctx context.Context, req Request) Response {
	switch req.Command {
	case "pause":
		s.pipeline.Pause()
		return Response{OK: true}
	case "resume":
		s.pipeline.Resume()
		return Response{OK: true}
	case "status":
		return Response{OK: true, Status: &Status{Paused: s.pipeline.Paused()}}
	case "pause_bulk":
		if req.BulkID == "" {
			return Response{OK: false, Error: "pause_bulk requires bulk_id"}
		}
		if err := s.queue.PauseBulk(ctx, req.BulkID); err != nil {
			return Response{OK: false, Error: err.Error()}
		}
		return Response{OK: true}
	case "resume_bulk":
		if req.BulkID == "" {
			return Response{OK: false, Error: "resume_bulk requires bulk_id"}
		}
		if err := s.queue.ResumeBulk(ctx, req.BulkID); err != nil {
			return Response{OK: false, Error: err.Error()}
		}
		return Response{OK: true}
	default:
		return Response{OK: false, Error: "unknown command: " + req.Command}
	}
}

// Client sends a single control request over the Unix socket and
// returns the parsed response, used by the CLI's remote-control
// subcommands (service pause|resume|status).
func Client(path string, req Request) (Response, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return Response{}, apperr.Wrap(apperr.TransientUpstream, "dial control socket", err)
	}
	defer conn.Close()

	enc := json.NewEncoder(conn)
	if err := enc.Encode(req); err != nil {
		return Response{}, apperr.Wrap(apperr.Internal, "encode control request", err)
	}

	var resp Response
	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return Response{}, apperr.Wrap(apperr.Internal, "read control response", err)
		}
		return Response{}, apperr.New(apperr.Internal, "control socket closed without a response")
	}
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return Response{}, apperr.Wrap(apperr.Internal, "decode control response", err)
	}
	return resp, nil
}
