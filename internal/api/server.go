// Package api exposes the read-only HTTP interface over crawled data.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/marketwatch/crawler/internal/market"
)

// Server wires HTTP handlers to the store.
type Server struct {
	router chi.Router
	store  market.Store
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(store market.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{store: store, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/products/{pk}", func(r chi.Router) {
			r.Get("/", s.getProduct)
			r.Get("/history", s.getProductHistory)
		})
		r.Get("/brands/{name}", s.getBrand)
		r.Get("/sellers/{name}", s.getSeller)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The store is the only downstream; a cheap read proves it out.
	if _, err := s.store.BrandByName(r.Context(), ""); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	pk, err := strconv.ParseInt(chi.URLParam(r, "pk"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid product pk")
		return
	}
	product, err := s.store.ProductByPK(r.Context(), pk)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if product == nil {
		s.writeError(w, http.StatusNotFound, "product not found")
		return
	}
	latest, err := s.store.LatestHistory(r.Context(), product.ID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, productResponse{Product: product, Latest: latest})
}

func (s *Server) getProductHistory(w http.ResponseWriter, r *http.Request) {
	pk, err := strconv.ParseInt(chi.URLParam(r, "pk"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid product pk")
		return
	}
	product, err := s.store.ProductByPK(r.Context(), pk)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if product == nil {
		s.writeError(w, http.StatusNotFound, "product not found")
		return
	}
	history, err := s.store.HistoryByProduct(r.Context(), product.ID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if history == nil {
		history = []market.HistoryEntry{}
	}
	s.writeJSON(w, http.StatusOK, historyResponse{ProductPK: pk, History: history})
}

func (s *Server) getBrand(w http.ResponseWriter, r *http.Request) {
	brand, err := s.store.BrandByName(r.Context(), nameParam(r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if brand == nil {
		s.writeError(w, http.StatusNotFound, "brand not found")
		return
	}
	s.writeJSON(w, http.StatusOK, brand)
}

func (s *Server) getSeller(w http.ResponseWriter, r *http.Request) {
	seller, err := s.store.SellerByName(r.Context(), nameParam(r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if seller == nil {
		s.writeError(w, http.StatusNotFound, "seller not found")
		return
	}
	s.writeJSON(w, http.StatusOK, seller)
}

type productResponse struct {
	Product *market.Product      `json:"product"`
	Latest  *market.HistoryEntry `json:"latest,omitempty"`
}

type historyResponse struct {
	ProductPK int64                 `json:"product_pk"`
	History   []market.HistoryEntry `json:"history"`
}

// nameParam returns the {name} route parameter with path escaping
// undone, so names containing spaces resolve.
func nameParam(r *http.Request) string {
	raw := chi.URLParam(r, "name")
	name, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return name
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
