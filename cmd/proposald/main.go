package main

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/zianansar/proposal-writer-sub001/internal/server"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg := server.ConfigFromEnv()
	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("startup failed")
	}
	defer srv.Close()

	logger.WithFields(logrus.Fields{
		"addr": cfg.Addr,
		"data": cfg.DataDir,
	}).Info("proposald listening")
	if err := http.ListenAndServe(cfg.Addr, srv); err != nil {
		logger.WithError(err).Fatal("server stopped")
	}
}
