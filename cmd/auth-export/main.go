package main

import (
	"context"
	"flag"
	"os"
	"time"

	"steam-auth-backend/internal/config"
	"steam-auth-backend/internal/database"
	"steam-auth-backend/internal/export"
	"steam-auth-backend/internal/logging"
	"steam-auth-backend/internal/models"
	"steam-auth-backend/internal/services/authdata"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

var (
	output   = flag.String("out", "auth_data.xlsx", "输出文件路径")
	domainID = flag.Int("domain", 0, "只导出该domain的记录 (0 = 全部)")
	steamID  = flag.String("steam-id", "", "只导出该Steam ID")
	timeout  = flag.Duration("timeout", 5*time.Minute, "导出超时时间")
)

func main() {
	flag.Parse()
	_ = godotenv.Load()

	cfg := config.Load()
	logging.Setup(cfg.LogLevel, "", false)

	db, err := database.Initialize(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}

	var filter authdata.Filter
	if *domainID != 0 {
		filter.DomainID = domainID
	}
	if *steamID != "" {
		filter.SteamID = steamID
	}

	w, err := export.NewAuthDataWriter()
	if err != nil {
		log.WithError(err).Fatal("create workbook")
	}
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := authdata.NewService(db).Each(ctx, filter, func(row models.AuthData) error {
		return w.Add(row)
	}); err != nil {
		log.WithError(err).Fatal("read auth records")
	}

	f, err := os.Create(*output)
	if err != nil {
		log.WithError(err).Fatal("create output file")
	}
	if _, err := w.WriteTo(f); err != nil {
		_ = f.Close()
		log.WithError(err).Fatal("write workbook")
	}
	if err := f.Close(); err != nil {
		log.WithError(err).Fatal("close output file")
	}

	log.WithFields(log.Fields{"rows": w.Rows(), "file": *output}).Info("auth records exported")
}
