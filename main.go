package main

import (
	"context"
	"time"

	"github.com/cppla/inkwell/config"
	"github.com/cppla/inkwell/models"
	"github.com/cppla/inkwell/routes"
	"github.com/cppla/inkwell/services"
	"github.com/cppla/inkwell/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer func() { _ = utils.Logger.Sync() }()

	db := config.InitDatabase(models.All()...)
	if err := services.SeedRolesAndPermissions(db); err != nil {
		utils.Sugar.Fatalf("seeding roles failed: %v", err)
	}

	redisClient := utils.NewRedisClient(cfg.RedisHost, cfg.RedisPort, cfg.RedisDB, cfg.RedisPassword)
	svc := services.New(db, services.Options{
		Cache: utils.NewCache(redisClient),
		Mailer: utils.NewMailer(utils.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
			TLS:      cfg.SMTPTLS,
		}),
		Storage:            services.NewLocalStorage(cfg.UploadDir, cfg.UploadURLPrefix),
		JWTSecret:          cfg.JWTSecret,
		AccessTokenTTL:     time.Duration(cfg.AccessTokenTTLMinutes) * time.Minute,
		RefreshTokenTTL:    time.Duration(cfg.RefreshTokenTTLMinutes) * time.Minute,
		NewsletterTokenTTL: time.Duration(cfg.NewsletterTokenTTLMinutes) * time.Minute,
		PasswordResetTTL:   time.Duration(cfg.PasswordResetTTLMinutes) * time.Minute,
		AppURL:             cfg.AppURL,
		EventWorkers:       cfg.EventWorkers,
		EventQueueSize:     cfg.EventQueueSize,
	})

	schedCtx, stopScheduler := context.WithCancel(context.Background())
	services.StartScheduler(schedCtx, svc.Articles, time.Duration(cfg.SchedulerIntervalSeconds)*time.Second)

	r := routes.SetupRouter(svc, cfg)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	err := utils.GraceServer(":"+cfg.AppPort, r, func(context.Context) {
		stopScheduler()
		svc.Close()
		if redisClient != nil {
			_ = redisClient.Close()
		}
	})
	if err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
