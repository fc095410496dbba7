package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"steam-auth-backend/internal/api"
	"steam-auth-backend/internal/config"
	"steam-auth-backend/internal/database"
	"steam-auth-backend/internal/logging"
	"steam-auth-backend/internal/services/events"
	"steam-auth-backend/internal/services/panel"
	steamService "steam-auth-backend/internal/services/steam"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogFile, cfg.IsProduction())
	if envErr != nil {
		log.Debug("no .env file found")
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	if !cfg.SteamVerifyOpenID {
		log.Warn("STEAM_VERIFY_OPENID=false: steam callbacks are trusted without verification")
	}
	if cfg.MainPanelURL == "" {
		log.Info("MAIN_PANEL_URL not set, auth events stay local")
	}

	db, err := database.Initialize(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}

	steamSvc := steamService.NewSteamService(steamService.Options{
		APIKey:        cfg.SteamAPIKey,
		APIBase:       cfg.SteamAPIBase,
		CommunityBase: cfg.SteamCommunityBase,
		RetryAttempts: cfg.SteamRetryAttempts,
		RetryWait:     cfg.SteamRetryWait,
		Timeout:       cfg.HTTPTimeout,
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.WithError(err).Fatal("invalid TRUSTED_PROXIES")
	}
	r.Use(gin.Recovery(), logging.RequestLogger())

	corsCfg := cors.DefaultConfig()
	if len(cfg.CORSOrigins) == 0 || (len(cfg.CORSOrigins) == 1 && cfg.CORSOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORSOrigins
	}
	corsCfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", logging.RequestIDHeader}
	r.Use(cors.New(corsCfg))

	api.SetupRoutes(&r.RouterGroup, api.Deps{
		DB:     db,
		Config: cfg,
		Steam:  steamSvc,
		Panel:  panel.NewNotifier(cfg.MainPanelURL, cfg.MainPanelToken, cfg.HTTPTimeout),
		Events: events.NewHub(),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
