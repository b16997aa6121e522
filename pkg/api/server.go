// Package api exposes the control surface over HTTP: pattern management,
// item inspection and the registered command menu. The server is itself a
// command surface, so the menu controller publishes commands straight into
// it.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/listveil/listveil/pkg/interfaces"
	"github.com/listveil/listveil/pkg/menu"
	"github.com/listveil/listveil/pkg/rules"
)

// DefaultAddr is the loopback address the API binds when none is
// configured.
const DefaultAddr = "127.0.0.1:7341"

// Server serves the control API and implements interfaces.Surface.
type Server struct {
	addr   string
	logger *zap.Logger

	mu         sync.Mutex
	store      *rules.Store
	container  interfaces.Container
	controller *menu.Controller
	commands   map[string]interfaces.Command

	httpServer *http.Server
	listener   net.Listener
}

// commandView is the JSON shape of a registered command, without its Run
// closure.
type commandView struct {
	Key     string `json:"key"`
	Title   string `json:"title"`
	Prompt  string `json:"prompt,omitempty"`
	Confirm string `json:"confirm,omitempty"`
}

// itemView is the JSON shape of one container item.
type itemView struct {
	Text   string `json:"text"`
	Hidden bool   `json:"hidden"`
}

// NewServer creates the API server. The pipeline is attached afterwards
// with Bind, since the menu controller needs the server as its surface
// before the rest of the pipeline exists.
func NewServer(addr string, logger *zap.Logger) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		addr:     addr,
		logger:   logger,
		commands: make(map[string]interfaces.Command),
	}
}

// Bind attaches the running pipeline. Until Bind is called every route
// that touches patterns or items answers 503.
func (s *Server) Bind(store *rules.Store, container interfaces.Container, controller *menu.Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store = store
	s.container = container
	s.controller = controller
}

// Register implements the Surface interface.
func (s *Server) Register(cmd interfaces.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands[cmd.Key] = cmd
	return nil
}

// Unregister implements the Surface interface.
func (s *Server) Unregister(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.commands, key)
	return nil
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/patterns", s.handleListPatterns)
	r.Post("/patterns", s.handleAddPattern)
	r.Delete("/patterns", s.handleRemovePattern)
	r.Post("/patterns/clear", s.handleClearPatterns)
	r.Get("/items", s.handleListItems)
	r.Get("/commands", s.handleListCommands)
	r.Post("/commands/*", s.handleRunCommand)

	return r
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server failed", zap.Error(err))
		}
	}()

	s.logger.Info("api listening", zap.String("addr", listener.Addr().String()))
	return nil
}

// Addr returns the bound address after Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListPatterns(w http.ResponseWriter, _ *http.Request) {
	store := s.getStore()
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not ready")
		return
	}
	patterns := store.Patterns()
	if patterns == nil {
		patterns = []string{}
	}
	writeJSON(w, http.StatusOK, patterns)
}

func (s *Server) handleAddPattern(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pattern string `json:"pattern"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	controller := s.getController()
	if controller == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not ready")
		return
	}

	if err := controller.AddPattern(req.Pattern); err != nil {
		var verr *rules.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, s.getStore().Patterns())
}

func (s *Server) handleRemovePattern(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pattern string `json:"pattern"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	controller := s.getController()
	if controller == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not ready")
		return
	}

	if err := controller.RemovePattern(req.Pattern); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.getStore().Patterns())
}

func (s *Server) handleClearPatterns(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Confirm bool `json:"confirm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Confirm {
		writeError(w, http.StatusBadRequest, "confirmation required")
		return
	}

	controller := s.getController()
	if controller == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not ready")
		return
	}

	if err := controller.ClearPatterns(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, []string{})
}

func (s *Server) handleListItems(w http.ResponseWriter, _ *http.Request) {
	container := s.getContainer()
	if container == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not ready")
		return
	}
	items := container.Items()
	views := make([]itemView, len(items))
	for i, item := range items {
		views[i] = itemView{Text: item.Text(), Hidden: item.Hidden()}
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleListCommands(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	views := make([]commandView, 0, len(s.commands))
	for _, cmd := range s.commands {
		views = append(views, commandView{
			Key:     cmd.Key,
			Title:   cmd.Title,
			Prompt:  cmd.Prompt,
			Confirm: cmd.Confirm,
		})
	}
	s.mu.Unlock()

	sort.Slice(views, func(i, j int) bool { return views[i].Key < views[j].Key })
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleRunCommand(w http.ResponseWriter, r *http.Request) {
	key, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil || key == "" {
		writeError(w, http.StatusBadRequest, "invalid command key")
		return
	}

	var req struct {
		Input   string `json:"input"`
		Confirm bool   `json:"confirm"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	s.mu.Lock()
	cmd, ok := s.commands[key]
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "unknown command")
		return
	}
	if cmd.Confirm != "" && !req.Confirm {
		writeError(w, http.StatusBadRequest, "confirmation required")
		return
	}

	if err := cmd.Run(req.Input); err != nil {
		var verr *rules.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getController() *menu.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controller
}

func (s *Server) getStore() *rules.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store
}

func (s *Server) getContainer() interfaces.Container {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.container
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
