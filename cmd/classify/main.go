// Command classify runs the prediction pipeline on local image files and
// prints one JSON outcome per file.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Brownie44l1/xray-api/internal/app"
	"github.com/Brownie44l1/xray-api/internal/config"
	"github.com/Brownie44l1/xray-api/internal/logger"
	"github.com/Brownie44l1/xray-api/internal/pipeline"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "config file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [-config file] image...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Server.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync(log)

	application, err := app.New(cfg, log)
	if err != nil {
		log.Fatal("failed to start", zap.Error(err))
	}
	defer application.Close()

	enc := json.NewEncoder(os.Stdout)
	failed := false
	for _, path := range flag.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Error("failed to read image", zap.String("path", path), zap.Error(err))
			failed = true
			continue
		}

		outcome, err := application.Pipeline.Run(context.Background(), pipeline.Upload{
			Filename: filepath.Base(path),
			Data:     data,
		})
		if err != nil {
			enc.Encode(map[string]string{"file": path, "error": err.Error()})
			failed = true
			continue
		}
		enc.Encode(outcome)
	}

	if failed {
		os.Exit(1)
	}
}
