// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

//go:build linux

// Package main implements the mylocation service.
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/wneessen/mylocation/internal/config"
	"github.com/wneessen/mylocation/internal/i18n"
	"github.com/wneessen/mylocation/internal/logger"
	"github.com/wneessen/mylocation/internal/service"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGABRT, os.Interrupt)
	defer cancel()

	log := logger.NewLogger(slog.LevelError)

	confPath := flag.String("config", "", "path to the config file")
	startNow := flag.Bool("start", false, "start acquiring the location right away")
	flag.Parse()

	// Environment overrides may live in a .env file next to the binary's working directory
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Error("failed to load .env file", logger.Err(err))
		os.Exit(1)
	}

	conf, err := loadConfig(*confPath)
	if err != nil {
		log.Error("failed to load config", logger.Err(err))
		os.Exit(1)
	}
	if *startNow {
		conf.Location.StartOnLaunch = true
	}

	log = logger.NewLogger(conf.LogLevel)
	t, err := i18n.New(conf.Locale)
	if err != nil {
		log.Error("failed to initialize localizer", logger.Err(err))
		os.Exit(1)
	}

	serv, err := service.New(conf, log, t)
	if err != nil {
		log.Error("failed to initialize mylocation service", logger.Err(err))
		os.Exit(1)
	}

	log.Info(t.Get("starting mylocation service"), slog.String("version", version),
		slog.String("commit", commit), slog.String("date", date))
	if err = serv.Run(ctx); err != nil {
		log.Error(t.Get("failed to start mylocation service"), logger.Err(err))
		os.Exit(1)
	}
	log.Info(t.Get("shutting down mylocation service"))
}

// loadConfig reads the config from the given file, from the default location or from
// defaults and environment only, in that order of preference.
func loadConfig(confPath string) (*config.Config, error) {
	if confPath != "" {
		return config.NewFromFile(filepath.Dir(confPath), filepath.Base(confPath))
	}
	if path, file := findConfigFile(); path != "" && file != "" {
		return config.NewFromFile(path, file)
	}
	return config.New()
}

func findConfigFile() (string, string) {
	homedir, err := os.UserHomeDir()
	if err != nil {
		return "", ""
	}
	for _, ext := range []string{"toml", "yaml", "yml", "json"} {
		path := filepath.Join(homedir, ".config", "mylocation", "config."+ext)
		if _, err = os.Stat(path); err == nil {
			return filepath.Dir(path), filepath.Base(path)
		}
	}
	return "", ""
}
