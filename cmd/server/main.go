package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/local/tipificador/internal/batch"
	cfgpkg "github.com/local/tipificador/internal/config"
	"github.com/local/tipificador/internal/httpapi"
	"github.com/local/tipificador/internal/jobapi"
	logpkg "github.com/local/tipificador/internal/logger"
	mpkg "github.com/local/tipificador/internal/metrics"
	"github.com/local/tipificador/internal/ocrtier"
	"github.com/local/tipificador/internal/scratch"
)

func main() {
	_ = godotenv.Load()

	cfg := cfgpkg.FromEnv()

	_ = logpkg.Init(logpkg.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	})
	defer logpkg.Close()

	store := scratch.New(cfg.Scratch.Root)

	jobs := jobapi.New(store, jobapi.Options{
		MaxFiles:    cfg.Scratch.MaxFiles,
		MaxFileSize: cfg.Scratch.MaxFileBytes,
		ThumbWidth:  cfg.Render.ThumbWidth,
		ViewWidth:   cfg.Render.ViewWidth,
		CacheView:   cfg.Render.CacheView,
		Ocr: ocrtier.Config{
			Enabled:     cfg.Ocr.Enabled,
			Lang:        cfg.Ocr.Lang,
			DPI:         cfg.Ocr.DPI,
			HeaderDPI:   cfg.Ocr.HeaderDPI,
			HeaderRatio: cfg.Ocr.HeaderRatio,
			PSM:         cfg.Ocr.PSM,
			MinTextLen:  cfg.Ocr.MinTextLen,
			Workers:     cfg.Ocr.Workers,
		},
	})

	batches := batch.New(store, jobs, batch.Options{
		MaxPackages: cfg.Batch.MaxPackages,
		MaxBytes:    cfg.Batch.MaxBytes,
	})

	mpkg.Init()

	api := httpapi.New(jobs, batches).WithBlobRegion(cfg.Blob.Region)
	mux := http.NewServeMux()
	api.RegisterRoutes(mux)
	mux.Handle("GET /metrics", mpkg.Handler())

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{Addr: ":" + port, Handler: mux}

	go func() {
		log.Info().Msgf("HTTP server listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			jobs.Sweep(cfg.Scratch.JobTTL)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	fmt.Println("shutdown complete")
}
