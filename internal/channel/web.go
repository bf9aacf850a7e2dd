package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"alfred/internal/metrics"
	"alfred/internal/session"
	"alfred/internal/tool"
)

const (
	maxBodySize       = 1 << 20
	requestTimeout    = 120 * time.Second
	sessionCookieName = "alfred_session"
	sessionMaxAge     = 86400 * 30 // 30 days
)

// Web exposes the assistant over HTTP: a JSON message API, confirmation
// endpoints, tool and workspace introspection, a metrics endpoint, and a
// WebSocket for streamed replies.
type Web struct {
	host      string
	port      int
	sessions  *session.Manager
	registry  *tool.Registry
	workspace string
	metrics   bool
	logger    *slog.Logger
	server    *http.Server
}

type WebConfig struct {
	Host      string
	Port      int
	Sessions  *session.Manager
	Registry  *tool.Registry
	Workspace string
	Metrics   bool
	Logger    *slog.Logger
}

func NewWeb(cfg WebConfig) *Web {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	return &Web{
		host:      cfg.Host,
		port:      cfg.Port,
		sessions:  cfg.Sessions,
		registry:  cfg.Registry,
		workspace: cfg.Workspace,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
}

func (w *Web) Name() string { return "web" }

// Start serves until the context is cancelled.
func (w *Web) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", w.host, w.port)
	w.server = &http.Server{
		Addr:              addr,
		Handler:           w.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	w.logger.Info("web API started", "addr", "http://"+addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		w.server.Shutdown(shutdownCtx)
	}()

	if err := w.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (w *Web) Stop() error {
	if w.server != nil {
		return w.server.Close()
	}
	return nil
}

// Handler builds the route table. Exposed for tests.
func (w *Web) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/message", w.handleMessage)
	mux.HandleFunc("POST /api/confirm", w.handleConfirm)
	mux.HandleFunc("POST /api/cancel", w.handleCancel)
	mux.HandleFunc("POST /api/reset", w.handleReset)
	mux.HandleFunc("GET /api/tools", w.handleTools)
	mux.HandleFunc("GET /api/files", w.handleFiles)
	mux.HandleFunc("GET /api/status", w.handleStatus)
	mux.HandleFunc("GET /ws", w.handleWS)
	if w.metrics {
		mux.Handle("GET /metrics", metrics.Collector.Handler())
	}
	return mux
}

type messageRequest struct {
	Text string `json:"text"`
}

type messageResponse struct {
	Reply string `json:"reply"`
}

func (w *Web) handleMessage(rw http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(http.MaxBytesReader(rw, r.Body, maxBodySize)).Decode(&req); err != nil {
		writeError(rw, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Text == "" {
		writeError(rw, http.StatusBadRequest, "empty message")
		return
	}
	w.dispatch(rw, r, req.Text)
}

func (w *Web) handleConfirm(rw http.ResponseWriter, r *http.Request) {
	w.dispatch(rw, r, "/confirm")
}

func (w *Web) handleCancel(rw http.ResponseWriter, r *http.Request) {
	w.dispatch(rw, r, "/cancel")
}

func (w *Web) handleReset(rw http.ResponseWriter, r *http.Request) {
	sid := w.sessionID(r, rw)
	w.sessions.Clear(session.Key("web", sid))
	writeJSON(rw, http.StatusOK, map[string]string{"status": "reset"})
}

// dispatch runs one assistant cycle for the request's session and writes
// the complete reply. Provider faults map to 502.
func (w *Web) dispatch(rw http.ResponseWriter, r *http.Request, text string) {
	sid := w.sessionID(r, rw)
	a := w.sessions.Get(session.Key("web", sid))

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	reply, err := a.ProcessText(ctx, text)
	if err != nil {
		w.logger.Error("message processing failed", "session", sid, "err", err)
		writeError(rw, http.StatusBadGateway, "assistant backend unavailable")
		return
	}
	writeJSON(rw, http.StatusOK, messageResponse{Reply: reply})
}

func (w *Web) handleTools(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, w.registry.Schemas())
}

type fileEntry struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	IsDir bool   `json:"is_dir"`
}

func (w *Web) handleFiles(rw http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(w.workspace)
	if err != nil {
		writeError(rw, http.StatusInternalServerError, "cannot read workspace")
		return
	}
	files := make([]fileEntry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileEntry{Name: e.Name(), Size: info.Size(), IsDir: e.IsDir()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	writeJSON(rw, http.StatusOK, map[string]any{
		"workspace": filepath.Clean(w.workspace),
		"files":     files,
	})
}

func (w *Web) handleStatus(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": w.sessions.Count(),
		"tools":    len(w.registry.Names()),
	})
}

// sessionID returns the caller's session id, minting a cookie on first
// contact.
func (w *Web) sessionID(r *http.Request, rw http.ResponseWriter) string {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		return cookie.Value
	}

	sid := "web_" + uuid.NewString()
	http.SetCookie(rw, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sid,
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.logger.Info("new web session created", "session", sid)
	return sid
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, status int, msg string) {
	writeJSON(rw, status, map[string]string{"error": msg})
}
