// cmd/server/main.go
package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/tokenrivals/roomserver/internal/journal"
	"github.com/tokenrivals/roomserver/internal/middleware"
	"github.com/tokenrivals/roomserver/internal/server"
	"github.com/tokenrivals/roomserver/internal/settlement"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	logger.Info("TokenRivals room server starting...")

	// Settlement is winner-critical but not startup-critical: without
	// it the server still matches players and reports typed failures
	// on every settlement-touching operation.
	var svc settlement.Service
	if owner, err := settlement.NewOwnerClientFromEnv(); err != nil {
		logger.Errorf("Settlement service unavailable, running degraded: %v", err)
	} else {
		svc = owner
		logger.Info("Settlement service initialized")
	}

	j, err := journal.Connect()
	if err != nil {
		logger.Errorf("Event journal unavailable, continuing without: %v", err)
		j = nil
	} else if j != nil {
		logger.Info("Event journal connected")
		defer j.Close()
	}

	grace := server.DefaultGracePeriod
	if v := os.Getenv("ROOM_GRACE_PERIOD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			grace = d
		} else {
			logger.Warnf("Invalid ROOM_GRACE_PERIOD %q, using %v", v, grace)
		}
	}

	srv := server.New(logger, svc, j, grace)

	mux := http.NewServeMux()
	mux.Handle("/health", middleware.LogMiddleware(logger)(srv.HealthHandler()))
	mux.Handle("/ws", middleware.LogMiddleware(logger)(srv.WSHandler(logger)))

	httpServer := &http.Server{
		Handler:     mux,
		ReadTimeout: time.Second * 10,
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8001"
	}
	l, err := net.Listen("tcp", fmt.Sprintf(":%s", port))
	if err != nil {
		logger.Fatalf("failed to listen: %v", err)
	}
	logger.Infof("Listening on %s, health check at /health", l.Addr())

	errc := make(chan error, 1)
	go func() {
		errc <- httpServer.Serve(l)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	select {
	case err := <-errc:
		logger.Errorf("failed to serve: %v", err)
	case sig := <-sigs:
		logger.Infof("terminating: %v", sig)
	}
}
