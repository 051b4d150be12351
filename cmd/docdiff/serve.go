package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/docdiff/docdiff/pkg/config"
	"github.com/docdiff/docdiff/pkg/lifecycle"
	"github.com/docdiff/docdiff/pkg/server"
)

var (
	servePort int
	serveHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start an HTTP server for uploading files, comparing them and asking
questions.

Endpoints:
  GET    /api/health
  POST   /api/sources          multipart "file" parts
  GET    /api/sources
  DELETE /api/sources/{id}
  POST   /api/compare          {"source_ids": [...]}
  POST   /api/ask              {"session_id", "source_ids", "question"}
  POST   /api/ask/stream       same body, answer as Server-Sent Events
  GET    /api/sessions/{id}
  DELETE /api/sessions/{id}

Examples:
  docdiff serve                    # localhost:8080
  docdiff serve --port 3000
  docdiff serve --host 0.0.0.0`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default from config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default from config)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	cfg := a.cfg
	if servePort == 0 {
		servePort = cfg.Server.Port
	}
	if serveHost == "" {
		serveHost = cfg.Server.Host
	}
	maxUpload, err := config.ParseSize(cfg.Server.MaxUploadSize)
	if err != nil {
		return err
	}

	svc, closeQA, err := a.newQA(ctx)
	if err != nil {
		return err
	}
	defer closeQA()
	if svc == nil {
		a.logger.Warn("GEMINI_API_KEY is not set; ask endpoints are disabled")
	}

	sessions, err := a.newSessionStore()
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	shutdown := lifecycle.NewShutdownManager(lifecycle.DefaultDrainTimeout, a.logger)
	shutdown.RegisterCloser(sessions)

	srv, err := server.NewServer(server.Config{
		Engine:        a.engine,
		Loader:        a.loader,
		QA:            svc,
		Sessions:      sessions,
		Logger:        a.logger,
		UploadDir:     cfg.Server.UploadDir,
		MaxUploadSize: maxUpload,
		HistorySize:   cfg.LLM.HistorySize,
		CORSOrigins:   cfg.Server.CORSOrigins,
	})
	if err != nil {
		sessions.Close()
		return fmt.Errorf("failed to create server: %w", err)
	}
	shutdown.RegisterCloser(srv)

	addr := fmt.Sprintf("%s:%d", serveHost, servePort)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      shutdown.Middleware(srv),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // Disable for SSE
		IdleTimeout:  120 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		shutdown.Shutdown(ctx)
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	a.logger.Info("server listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("session_backend", cfg.Session.Backend),
		zap.Bool("qa", svc != nil))

	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(listener); err != http.ErrServerClosed {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		shutdown.Shutdown(context.Background())
		return err
	case <-ctx.Done():
		a.logger.Info("shutting down", zap.Int64("in_flight", shutdown.InFlightCount()))
		drainCtx, cancel := context.WithTimeout(context.Background(), lifecycle.DefaultDrainTimeout)
		defer cancel()
		if err := shutdown.Shutdown(drainCtx); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
		closeCtx, cancelClose := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelClose()
		return httpServer.Shutdown(closeCtx)
	}
}
