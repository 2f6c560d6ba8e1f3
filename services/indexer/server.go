package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/givety/givety-indexer/services/indexer/entities"
	"github.com/givety/givety-indexer/services/indexer/store"
)

// Server provides the HTTP API for the indexer read models
type Server struct {
	indexer *Service
	router  *mux.Router
	http    *http.Server
}

// NewServer creates a new HTTP server for the indexer
func NewServer(svc *Service, addr string) *Server {
	s := &Server{
		indexer: svc,
		router:  mux.NewRouter(),
	}
	r := s.router

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/global", s.handleGetGlobal).Methods("GET")
	api.HandleFunc("/status", s.handleGetStatus).Methods("GET")

	// Redemption and liquidation endpoints
	api.HandleFunc("/redemptions", s.handleListRedemptions).Methods("GET")
	api.HandleFunc("/redemptions/{id}", s.handleGetRedemption).Methods("GET")
	api.HandleFunc("/liquidations", s.handleListLiquidations).Methods("GET")
	api.HandleFunc("/liquidations/{id}", s.handleGetLiquidation).Methods("GET")

	// Trove endpoints
	api.HandleFunc("/troves", s.handleListTroves).Methods("GET")
	api.HandleFunc("/troves/{id}", s.handleGetTrove).Methods("GET")
	api.HandleFunc("/troves/{id}/changes", s.handleListTroveChanges).Methods("GET")

	api.HandleFunc("/users/{id}", s.handleGetUser).Methods("GET")
	api.HandleFunc("/transactions/{id}", s.handleGetTransaction).Methods("GET")
	api.HandleFunc("/stakes/{id}", s.handleGetStake).Methods("GET")
	api.HandleFunc("/stakes/{id}/changes", s.handleListStakeChanges).Methods("GET")
	api.HandleFunc("/deposits/{id}", s.handleGetDeposit).Methods("GET")
	api.HandleFunc("/deposits/{id}/changes", s.handleListDepositChanges).Methods("GET")

	r.Handle("/ws", svc.feed)
	if reg := svc.metrics.Registry(); reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods("GET")
	}

	// Health check
	r.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.http.ListenAndServe()
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, errBadRequest):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		log.Error().Err(err).Msg("query failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

var errBadRequest = errors.New("bad request")

// pageFromQuery reads the first and skip query parameters.
func pageFromQuery(r *http.Request) (Page, error) {
	var p Page
	q := r.URL.Query()
	for name, dst := range map[string]*int{"first": &p.First, "skip": &p.Skip} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return Page{}, fmt.Errorf("%w: %s must be a non-negative integer", errBadRequest, name)
		}
		*dst = v
	}
	return p, nil
}

// respond writes v, or maps err.
func respond[T any](w http.ResponseWriter, v T, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// listHandler adapts a paged query to an HTTP handler.
func listHandler[T any](query func(ctx context.Context, r *http.Request, page Page) ([]T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := pageFromQuery(r)
		if err != nil {
			writeError(w, err)
			return
		}
		items, err := query(r.Context(), r, page)
		respond(w, items, err)
	}
}

func (s *Server) handleGetGlobal(w http.ResponseWriter, r *http.Request) {
	g, err := s.indexer.reader.Global(r.Context())
	respond(w, g, err)
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.indexer.Status(r.Context())
	respond(w, st, err)
}

func (s *Server) handleListRedemptions(w http.ResponseWriter, r *http.Request) {
	listHandler(func(ctx context.Context, _ *http.Request, page Page) ([]entities.Redemption, error) {
		return s.indexer.reader.Redemptions(ctx, page)
	})(w, r)
}

func (s *Server) handleGetRedemption(w http.ResponseWriter, r *http.Request) {
	v, err := s.indexer.reader.Redemption(r.Context(), mux.Vars(r)["id"])
	respond(w, v, err)
}

func (s *Server) handleListLiquidations(w http.ResponseWriter, r *http.Request) {
	listHandler(func(ctx context.Context, _ *http.Request, page Page) ([]entities.Liquidation, error) {
		return s.indexer.reader.Liquidations(ctx, page)
	})(w, r)
}

func (s *Server) handleGetLiquidation(w http.ResponseWriter, r *http.Request) {
	v, err := s.indexer.reader.Liquidation(r.Context(), mux.Vars(r)["id"])
	respond(w, v, err)
}

func (s *Server) handleListTroves(w http.ResponseWriter, r *http.Request) {
	listHandler(func(ctx context.Context, r *http.Request, page Page) ([]entities.Trove, error) {
		status := entities.TroveStatus(r.URL.Query().Get("status"))
		return s.indexer.reader.Troves(ctx, status, page)
	})(w, r)
}

func (s *Server) handleGetTrove(w http.ResponseWriter, r *http.Request) {
	v, err := s.indexer.reader.Trove(r.Context(), mux.Vars(r)["id"])
	respond(w, v, err)
}

func (s *Server) handleListTroveChanges(w http.ResponseWriter, r *http.Request) {
	listHandler(func(ctx context.Context, r *http.Request, page Page) ([]entities.TroveChange, error) {
		return s.indexer.reader.TroveChanges(ctx, mux.Vars(r)["id"], page)
	})(w, r)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	v, err := s.indexer.reader.User(r.Context(), mux.Vars(r)["id"])
	respond(w, v, err)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	v, err := s.indexer.reader.Transaction(r.Context(), mux.Vars(r)["id"])
	respond(w, v, err)
}

func (s *Server) handleGetStake(w http.ResponseWriter, r *http.Request) {
	v, err := s.indexer.reader.Stake(r.Context(), mux.Vars(r)["id"])
	respond(w, v, err)
}

func (s *Server) handleListStakeChanges(w http.ResponseWriter, r *http.Request) {
	listHandler(func(ctx context.Context, r *http.Request, page Page) ([]entities.StakeChange, error) {
		return s.indexer.reader.StakeChanges(ctx, mux.Vars(r)["id"], page)
	})(w, r)
}

func (s *Server) handleGetDeposit(w http.ResponseWriter, r *http.Request) {
	v, err := s.indexer.reader.StabilityDeposit(r.Context(), mux.Vars(r)["id"])
	respond(w, v, err)
}

func (s *Server) handleListDepositChanges(w http.ResponseWriter, r *http.Request) {
	listHandler(func(ctx context.Context, r *http.Request, page Page) ([]entities.StabilityDepositChange, error) {
		return s.indexer.reader.StabilityDepositChanges(ctx, mux.Vars(r)["id"], page)
	})(w, r)
}

// handleHealth provides health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "givety-indexer",
	})
}
