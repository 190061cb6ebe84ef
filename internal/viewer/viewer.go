package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/selfagency/beans-vscode-sub002/internal/bean"
	"github.com/selfagency/beans-vscode-sub002/internal/beans"
	"github.com/selfagency/beans-vscode-sub002/internal/hierarchy"
	"github.com/selfagency/beans-vscode-sub002/internal/rank"
	"github.com/selfagency/beans-vscode-sub002/internal/reparent"
	"github.com/selfagency/beans-vscode-sub002/internal/sorting"
)

// --- Response types ---

type TreeResponse struct {
	Mode  hierarchy.Mode `json:"mode"`
	Sort  sorting.Mode   `json:"sort"`
	Count int            `json:"count"`
	Nodes []sorting.Node `json:"nodes"`
}

type SearchResponse struct {
	Query   string        `json:"query"`
	Results []rank.Scored `json:"results"`
}

type CheckRequest struct {
	Bean   bean.Ref  `json:"bean"`
	Parent *bean.Ref `json:"parent"`
}

type RefreshResponse struct {
	Count int `json:"count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// --- HTTP server ---

// Server exposes the materialized tree over a small JSON API.
type Server struct {
	provider  *hierarchy.Provider
	validator *reparent.Validator
	lookup    reparent.Lookup
	sort      sorting.Mode
	log       *slog.Logger
}

// NewServer creates a Server. lookup resolves bean ids for reparent checks.
func NewServer(p *hierarchy.Provider, v *reparent.Validator, lookup reparent.Lookup, sort sorting.Mode, log *slog.Logger) *Server {
	if v == nil {
		v = reparent.New()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Server{provider: p, validator: v, lookup: lookup, sort: sort, log: log}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tree", s.handleTree)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("POST /api/reparent/check", s.handleCheck)
	mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("beanline API: /api/tree, /api/search, /api/reparent/check, /api/refresh\n"))
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// forest returns the current forest, loading one on first use.
func (s *Server) forest(ctx context.Context) (*hierarchy.Forest, error) {
	if f := s.provider.Current(); f != nil {
		return f, nil
	}
	return s.provider.Refresh(ctx)
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	mode := s.provider.Mode()
	if m := r.URL.Query().Get("mode"); m != "" {
		parsed, err := hierarchy.ParseMode(m)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		mode = parsed
	}
	sortMode := s.sort
	if v := r.URL.Query().Get("sort"); v != "" {
		parsed, err := sorting.ParseMode(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		sortMode = parsed
	}

	f, err := s.forest(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if f.Mode() != mode {
		f = hierarchy.Materialize(f.Beans(), mode)
	}
	writeJSON(w, http.StatusOK, TreeResponse{
		Mode:  mode,
		Sort:  sortMode,
		Count: f.Len(),
		Nodes: sorting.SortForest(f, sortMode),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	f, err := s.forest(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	results := rank.Search(f.Beans(), q)
	if results == nil {
		results = []rank.Scored{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Query: q, Results: results})
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if req.Bean.IsZero() {
		writeError(w, http.StatusBadRequest, errors.New("bean is required"))
		return
	}

	ctx := r.Context()
	candidate, err := req.Bean.Resolve(ctx, s.lookup)
	if err != nil {
		writeError(w, lookupStatus(err), err)
		return
	}
	var parent *bean.Bean
	if req.Parent != nil && !req.Parent.IsZero() {
		p, err := req.Parent.Resolve(ctx, s.lookup)
		if err != nil {
			writeError(w, lookupStatus(err), err)
			return
		}
		parent = &p
	}
	writeJSON(w, http.StatusOK, s.validator.Validate(ctx, candidate, parent, s.lookup))
}

func lookupStatus(err error) int {
	if errors.Is(err, beans.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	f, err := s.provider.Refresh(r.Context())
	if err != nil {
		s.log.WarnContext(r.Context(), "refresh failed", "err", err)
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, RefreshResponse{Count: f.Len()})
}

// ListenAndServe serves on port until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", port, err)
	}
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.log.Info("viewer listening", "addr", fmt.Sprintf("http://localhost:%d", port))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// IsPortOpen checks if something is listening on the given address.
func IsPortOpen(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
