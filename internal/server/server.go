// Package server is the localhost HTTP surface of the daemon: backup
// export/preview/decrypt/import endpoints, a server-sent-events stream
// for import progress, and a minimal jobs listing. Single-user, local
// only; there is no auth layer.
package server

import (
	"net/http"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/zianansar/proposal-writer-sub001/internal/backup"
	"github.com/zianansar/proposal-writer-sub001/internal/salt"
	"github.com/zianansar/proposal-writer-sub001/internal/store"
)

// ImportProgressChannel is the event-stream channel name import
// progress is published under; callers subscribe to it by name on
// /api/events.
const ImportProgressChannel = "backup:import-progress"

type Server struct {
	cfg    Config
	mux    *http.ServeMux
	st     *store.Store
	engine *backup.Engine
	hub    *eventHub
	log    *logrus.Entry

	// Passphrase-bearing endpoints get a per-client token bucket so a
	// scripted guessing loop is slowed down even locally.
	rlPassphrase *multiLimiter
}

func New(cfg Config, logger *logrus.Logger) (*Server, error) {
	cfg.setDefaults()
	if logger == nil {
		logger = logrus.New()
	}
	log := logger.WithField("component", "server")

	// The installation salt is created on first run and never rotated;
	// exports carry their own salt, so this one only has to exist.
	if _, err := salt.Ensure(cfg.DataDir); err != nil {
		return nil, err
	}

	st, err := store.Open(filepath.Join(cfg.DataDir, "proposals.db"))
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:          cfg,
		mux:          http.NewServeMux(),
		st:           st,
		hub:          newEventHub(),
		log:          log,
		rlPassphrase: newMultiLimiter(rate.Limit(1), 5, 10*time.Minute),
	}
	s.engine = backup.NewEngine(st, backup.Config{
		DataDir:     cfg.DataDir,
		TempDir:     cfg.TempDir,
		Logger:      logger,
		KeepBackups: cfg.KeepBackups,
		OnProgress: func(p backup.Progress) {
			s.hub.Publish(ImportProgressChannel, p)
		},
	})

	// Remove temp extraction files a crashed previous process left.
	backup.Sweep(cfg.TempDir, cfg.SweepAge, logger.WithField("component", "sweep"))

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/health", s.handleHealth)

	s.mux.HandleFunc("/api/backup/export", s.handleExport)
	s.mux.HandleFunc("/api/backup/preview", s.handlePreview)
	s.mux.HandleFunc("/api/backup/decrypt", s.handleDecrypt)
	s.mux.HandleFunc("/api/backup/import", s.handleImport)
	s.mux.HandleFunc("/api/events", s.handleEvents)

	s.mux.HandleFunc("/api/jobs", s.handleJobs)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) Close() error {
	s.engine.Close()
	return s.st.Close()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
