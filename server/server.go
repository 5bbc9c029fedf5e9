// Package server exposes the conversion pipeline over HTTP: one
// endpoint to run a conversion, one to stream its progress, and one
// to collect the artifact.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/vbforge-ai/vbforge"
	"github.com/vbforge-ai/vbforge/ai"
	"github.com/vbforge-ai/vbforge/event"
	"github.com/vbforge-ai/vbforge/store"
)

const artifactFileName = "MyWindowsService.zip"

// Server wires the HTTP surface to the pipeline. Each conversion run
// gets its own pipeline and event bus; the progress stream follows
// the most recently started run.
type Server struct {
	cfg    vbforge.Config
	model  *ai.Model
	store  *store.Store
	logger *slog.Logger

	mu        sync.Mutex
	activeBus *event.Bus
}

func New(cfg vbforge.Config, model *ai.Model, st *store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, model: model, store: st, logger: logger}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /convert", s.handleConvert)
	mux.HandleFunc("GET /download/{id}", s.handleDownload)
	mux.HandleFunc("GET /stream", s.handleStream)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)
	return mux
}

func (s *Server) setActiveBus(bus *event.Bus) {
	s.mu.Lock()
	s.activeBus = bus
	s.mu.Unlock()
}

func (s *Server) getActiveBus() *event.Bus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeBus
}

// clearActiveBus detaches bus only if it is still the active one, so
// a newer run's bus is never dropped by a stale stream.
func (s *Server) clearActiveBus(bus *event.Bus) {
	s.mu.Lock()
	if s.activeBus == bus {
		s.activeBus = nil
	}
	s.mu.Unlock()
}

type convertResponse struct {
	Status       string  `json:"status"`
	ConversionID string  `json:"conversion_id"`
	Duration     float64 `json:"duration"`
	Message      string  `json:"message"`
	DownloadURL  string  `json:"download_url"`
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(s.cfg.MaxFileSizeMB)*1024*1024 + 1024*1024
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	input, err := s.readInput(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	bus := event.NewBus(vbforge.NumStages, s.logger)
	pipe := vbforge.NewPipeline(s.cfg, s.model, s.store, bus, s.logger)
	s.setActiveBus(bus)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ConversionTimeout)
	defer cancel()

	start := time.Now()
	type outcome struct {
		res vbforge.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := pipe.Run(ctx, input)
		bus.Close()
		done <- outcome{res, err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			s.writeError(w, out.err)
			return
		}
		s.writeJSON(w, http.StatusOK, convertResponse{
			Status:       "success",
			ConversionID: out.res.ConversionID,
			Duration:     time.Since(start).Seconds(),
			Message:      "VB6 project successfully converted to .NET 9 Worker Service",
			DownloadURL:  "/download/" + out.res.ConversionID,
		})
	case <-ctx.Done():
		// The run's own context check prevents the late artifact from
		// ever being served.
		s.writeError(w, vbforge.ErrTimeout)
	}
}

// readInput extracts exactly one source from the request: an uploaded
// archive or a repository link.
func (s *Server) readInput(r *http.Request) (vbforge.Input, error) {
	var input vbforge.Input

	if err := r.ParseMultipartForm(32 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return input, fmt.Errorf("%w: body exceeds %d bytes", vbforge.ErrPayloadTooLarge, tooLarge.Limit)
		}
		return input, fmt.Errorf("%w: %v", vbforge.ErrCorruptArchive, err)
	}

	file, _, err := r.FormFile("zip_file")
	switch {
	case err == nil:
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return input, fmt.Errorf("%w: body exceeds %d bytes", vbforge.ErrPayloadTooLarge, tooLarge.Limit)
			}
			return input, fmt.Errorf("%w: %v", vbforge.ErrCorruptArchive, err)
		}
		input.Archive = data
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		return input, fmt.Errorf("%w: %v", vbforge.ErrCorruptArchive, err)
	}

	input.GithubLink = r.FormValue("github_link")
	return input, nil
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	data, err := s.store.Take(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", artifactFileName))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
	w.Write(data)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ping := time.NewTicker(s.cfg.StreamIdleTimeout)
	defer ping.Stop()

	for {
		bus := s.getActiveBus()
		var events <-chan event.PipelineEvent
		if bus != nil {
			events = bus.Events()
		}

		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			s.writeEvent(w, flusher, event.PipelineEvent{
				Kind:      event.KindPing,
				Level:     "INFO",
				Message:   "keep-alive",
				Timestamp: time.Now(),
			})
		case ev, open := <-events:
			if !open {
				// Run finished and its queue is drained.
				s.clearActiveBus(bus)
				continue
			}
			s.writeEvent(w, flusher, ev)
			if ev.Terminal() {
				return
			}
			ping.Reset(s.cfg.StreamIdleTimeout)
		}
	}
}

func (s *Server) writeEvent(w http.ResponseWriter, flusher http.Flusher, ev event.PipelineEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("failed to encode stream event", "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, payload)
	flusher.Flush()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"service": "VB6 to .NET 9 Worker Service Converter",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"convert":  "POST /convert",
			"download": "GET /download/{id}",
			"stream":   "GET /stream",
			"health":   "GET /health",
		},
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// writeError maps pipeline errors onto HTTP statuses: input problems
// are the caller's fault, a missing artifact is 404, a timeout is
// 504, everything else is a server fault.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case vbforge.IsInputError(err):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, vbforge.ErrTimeout):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.writeJSON(w, status, map[string]string{"detail": err.Error()})
}
