// Package api serves rendered species maps and dataset summaries over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/specdist/internal/mapper"
	"github.com/lox/specdist/internal/models"
	"github.com/lox/specdist/internal/render"
	"github.com/lox/specdist/internal/store"
)

type Server struct {
	store  *store.Store
	bundle *models.Bundle
	opts   mapper.Options
	port   string

	mu   sync.Mutex // guards maps below; renders are memoized per species
	pngs map[string][]byte
}

// NewServer serves maps for the given bundle. Rendering options apply to
// every species panel.
func NewServer(st *store.Store, bundle *models.Bundle, opts mapper.Options, port string) *Server {
	return &Server{
		store:  st,
		bundle: bundle,
		opts:   opts,
		port:   port,
		pngs:   make(map[string][]byte),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/maps/", s.handleMap)
	mux.HandleFunc("/api/species", s.handleSpecies)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    ":" + s.port,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// handleMap serves /maps/<species>.png, rendering on first request and
// memoizing the encoded PNG after that.
func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/maps/")
	if !strings.HasSuffix(name, ".png") {
		http.NotFound(w, r)
		return
	}
	label := strings.TrimSuffix(name, ".png")

	data, err := s.mapPNG(label)
	if err != nil {
		log.Printf("render %s: %v", label, err)
		http.Error(w, fmt.Sprintf("render %s failed", label), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

func (s *Server) mapPNG(label string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if data, ok := s.pngs[label]; ok {
		return data, nil
	}

	result, err := mapper.Run(s.bundle, []string{label}, s.opts)
	if err != nil {
		return nil, err
	}

	fig, err := render.Render(render.FigureSpec{
		Grid:     result.Grid,
		Coast:    result.Coast,
		Sentinel: result.Sentinel,
		Panels:   []render.Panel{{Title: label, Field: result.Maps[0].Field}},
	})
	if err != nil {
		return nil, err
	}
	data, err := fig.PNG()
	if err != nil {
		return nil, err
	}

	s.pngs[label] = data
	return data, nil
}

func (s *Server) handleSpecies(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.SpeciesCounts()
	if err != nil {
		log.Printf("species counts: %v", err)
		http.Error(w, "species counts failed", http.StatusInternalServerError)
		return
	}

	type entry struct {
		Species string `json:"species"`
		Count   int    `json:"count"`
		MapURL  string `json:"map_url"`
	}
	out := make([]entry, 0, len(counts))
	for _, c := range counts {
		out = append(out, entry{Species: c.Species, Count: c.Count, MapURL: "/maps/" + c.Species + ".png"})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"records":   len(s.bundle.Records),
		"coverages": len(s.bundle.Coverages),
	})
}
