/*
Copyright © 2025 matthewtan01
*/
package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matthewtan01/pdf-rag/handler"
	"github.com/matthewtan01/pdf-rag/logger"
	"github.com/matthewtan01/pdf-rag/service"
)

const shutdownTimeout = 15 * time.Second

// startServerCmd represents the start command
var startServerCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the chat server",
	Long:  `Starts the HTTP server that processes uploaded PDFs and answers questions over REST and WebSocket.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, err := logger.New(cfg.LogLevel)
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := newApplication(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := app.Close(context.Background()); err != nil {
				log.Warn("failed to release resources", zap.Error(err))
			}
		}()

		if cfg.LogLevel != "debug" {
			gin.SetMode(gin.ReleaseMode)
		}
		srv := &http.Server{
			Addr:    ":" + cfg.Port,
			Handler: newRouter(app),
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info("starting server", zap.String("port", cfg.Port))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func newRouter(app *application) *gin.Engine {
	corsHandler := handler.NewCorsHandler("")
	chatHandler := handler.NewChatHandler(app.handle, app.history, app.cfg.DefaultSessionID, app.logger)
	uploadHandler := handler.NewUploadHandler(app.fileService, app.cfg.MaxUploadSize, app.logger)
	healthHandler := handler.NewHealthHandler(app.handle)
	wsService := service.NewWebSocketService(app.handle, app.cfg.DefaultSessionID, app.logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsHandler.CorsMiddleware)
	router.MaxMultipartMemory = app.cfg.MaxUploadSize

	router.GET("/health", healthHandler.HandleHealth)

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/documents/process", uploadHandler.ProcessDocumentsHandler)
		apiV1.POST("/chat", chatHandler.HandleChat)
		apiV1.GET("/chat/history", chatHandler.HandleHistory)
		apiV1.GET("/sessions", chatHandler.HandleSessions)
		apiV1.GET("/ws", gin.WrapF(wsService.HandleChat))
	}
	return router
}

func init() {
	rootCmd.AddCommand(startServerCmd)
}
