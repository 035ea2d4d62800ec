// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/spooncast/echo/internal/api"
	"github.com/spooncast/echo/internal/config"
	"github.com/spooncast/echo/internal/hls"
	xglog "github.com/spooncast/echo/internal/log"
	"github.com/spooncast/echo/internal/record"
	"github.com/spooncast/echo/internal/rtmp"
	"github.com/spooncast/echo/internal/session"
	"github.com/spooncast/echo/internal/srt"
	"github.com/spooncast/echo/internal/stat"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	xglog.Configure(xglog.Config{Level: "info", Service: "echo", Version: version})
	logger := xglog.WithComponent("main")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("version", version).Str("commit", commit).Str("addr", cfg.Addr).Msg("starting echo")

	if cfg.HLSEnabled {
		if err := hls.PurgeRoot(cfg.HLSRootDir); err != nil {
			logger.Fatal().Err(err).Msg("failed to purge stale HLS output")
		}
	}

	manager := session.New(cfg)
	statStore := stat.NewStore()
	srtPool := srt.NewPortPool(cfg.SRTMinPort, cfg.SRTMaxPort)
	apiServer := api.NewServer(cfg, manager, srtPool, statStore)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		manager.Run(gctx)
		return nil
	})

	g.Go(func() error {
		if err := statStore.Run(gctx, manager); err != nil {
			return fmt.Errorf("stat: %w", err)
		}
		<-gctx.Done()
		return nil
	})

	if cfg.HLSEnabled {
		hlsService := hls.NewService(cfg, manager)
		g.Go(func() error {
			if err := hlsService.Run(gctx); err != nil {
				return fmt.Errorf("hls: %w", err)
			}
			return nil
		})
	}

	if cfg.RecordEnabled {
		recordService := record.NewService(cfg.RecordRootDir, manager)
		g.Go(func() error {
			if err := recordService.Run(gctx); err != nil {
				return fmt.Errorf("record: %w", err)
			}
			return nil
		})
	}

	if cfg.RTMPEnabled {
		rtmpListener := rtmp.NewListener(cfg, manager)
		g.Go(func() error {
			if err := rtmpListener.Serve(gctx); err != nil {
				return fmt.Errorf("rtmp: %w", err)
			}
			return nil
		})
	}

	srtListener := srt.NewListener(cfg, manager, srt.ParseStreamID)
	g.Go(func() error {
		if err := srtListener.Serve(gctx); err != nil {
			return fmt.Errorf("srt: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := apiServer.Run(gctx); err != nil {
			return fmt.Errorf("api: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		logger.Error().Err(err).Msg("echo exited with error")
		os.Exit(1)
	}
	logger.Info().Msg("echo shut down cleanly")
}
