package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"seebeck/internal/api"
	"seebeck/internal/config"
	"seebeck/internal/logging"
	"seebeck/internal/run"
)

const defaultLogTailLines = 200

// apiServer serves the read-only HTTP API for the daemon.
type apiServer struct {
	daemon *Daemon
	runs   *api.RunsService
	logger *slog.Logger
	bind   string
	token  string

	listener net.Listener
	server   *http.Server
}

// newAPIServer builds the API server. A nil server is returned when no bind
// address is configured; callers treat that as "API disabled".
func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}
	return &apiServer{
		daemon: d,
		runs:   api.NewRunsService(d.store),
		logger: logging.NewComponentLogger(logger, "api"),
		bind:   bind,
		token:  cfg.Paths.APIToken,
	}, nil
}

// start binds the listener and begins serving until ctx is canceled.
func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}

	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("bind api listener on %s: %w", s.bind, err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.Handle("GET /api/status", s.authed(s.handleStatus))
	mux.Handle("GET /api/runs", s.authed(s.handleRuns))
	mux.Handle("GET /api/runs/{id}", s.authed(s.handleRun))
	mux.Handle("GET /api/runs/{id}/samples", s.authed(s.handleSamples))
	mux.Handle("GET /api/logs", s.authed(s.handleLogs))

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server terminated", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.stop()
	}()

	s.logger.Info("api listening", logging.String("addr", listener.Addr().String()))
	return nil
}

// stop shuts the server down gracefully.
func (s *apiServer) stop() {
	if s == nil || s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("api shutdown incomplete", logging.Error(err))
	}
	s.server = nil
	s.listener = nil
}

// addr returns the bound listener address, for tests using port 0.
func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) authed(handler http.HandlerFunc) http.Handler {
	return authMiddleware(s.token, handler)
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		RunDBPath:    status.RunDBPath,
		LockFilePath: status.LockFilePath,
		Instrument:   status.Instrument,
		Workflow:     api.FromStatusSummary(status.Workflow),
	})
}

func (s *apiServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	var statuses []run.Status
	for _, raw := range r.URL.Query()["status"] {
		for _, value := range strings.Split(raw, ",") {
			value = strings.TrimSpace(value)
			if value != "" {
				statuses = append(statuses, run.Status(value))
			}
		}
	}
	items, err := s.runs.List(r.Context(), statuses...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		s.logger.Error("list runs", logging.Error(err))
		return
	}
	writeJSON(w, http.StatusOK, api.RunListResponse{Runs: items})
}

func (s *apiServer) handleRun(w http.ResponseWriter, r *http.Request) {
	id, ok := parseRunID(w, r)
	if !ok {
		return
	}
	item, err := s.runs.Describe(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load run")
		s.logger.Error("describe run", logging.Int64(logging.FieldRunID, id), logging.Error(err))
		return
	}
	if item == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("run %d not found", id))
		return
	}
	writeJSON(w, http.StatusOK, api.RunResponse{Run: *item})
}

func (s *apiServer) handleSamples(w http.ResponseWriter, r *http.Request) {
	id, ok := parseRunID(w, r)
	if !ok {
		return
	}
	phase := run.Phase(strings.TrimSpace(r.URL.Query().Get("phase")))
	resp, err := s.runs.Samples(r.Context(), id, phase)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load samples")
		s.logger.Error("load samples", logging.Int64(logging.FieldRunID, id), logging.Error(err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	lines := defaultLogTailLines
	if raw := r.URL.Query().Get("lines"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "lines must be a positive integer")
			return
		}
		lines = parsed
	}
	tail, err := tailFile(s.daemon.LogPath(), lines)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeJSON(w, http.StatusOK, api.LogTailResponse{Path: s.daemon.LogPath()})
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to read log file")
		s.logger.Error("tail log", logging.Error(err))
		return
	}
	writeJSON(w, http.StatusOK, api.LogTailResponse{Path: s.daemon.LogPath(), Lines: tail})
}

func parseRunID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "run id must be a positive integer")
		return 0, false
	}
	return id, true
}

// tailFile returns up to n trailing lines of the file at path.
func tailFile(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
