// Package status serves live capture counters over HTTP.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	"github.com/norasector/playsdr/pkg/capture"
	"github.com/norasector/playsdr/pkg/monitor"
)

type Server struct {
	provider capture.StatsProvider
	spectrum *monitor.Spectrum
	srv      *http.Server
}

type ServerOption func(s *Server)

// WithSpectrum adds the /spectrum and /spectrum.png routes.
func WithSpectrum(spectrum *monitor.Spectrum) ServerOption {
	return func(s *Server) {
		s.spectrum = spectrum
	}
}

func NewServer(port int, provider capture.StatsProvider, opts ...ServerOption) *Server {
	s := &Server{
		provider: provider,
		srv:      &http.Server{Addr: fmt.Sprintf(":%d", port), ReadHeaderTimeout: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.srv.Handler = s.Handler()
	return s
}

func (s *Server) Handler() http.Handler {
	handler := httprouter.New()
	handler.GET("/", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Location", "/stats")
		w.WriteHeader(http.StatusFound)
	})

	handler.GET("/stats", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s.provider.Stats()); err != nil {
			log.Debug().Err(err).Msg("error writing stats response")
		}
	})

	// healthz reports 200 while the capture can still accept packets.
	handler.GET("/healthz", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		state := s.provider.Stats().State
		code := http.StatusOK
		if state == capture.StateDraining.String() || state == capture.StateTerminated.String() {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(code)
		w.Write([]byte(state + "\n"))
	})

	if s.spectrum != nil {
		handler.GET("/spectrum", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(s.spectrum.Snapshot()); err != nil {
				log.Debug().Err(err).Msg("error writing spectrum response")
			}
		})

		handler.GET("/spectrum.png", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
			img, err := s.spectrum.PNG()
			if err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "image/png")
			w.Header().Set("Cache-Control", "no-cache")
			w.Write(img)
		})
	}
	return handler
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.srv.Shutdown(shutdownCtx)
	}()

	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
