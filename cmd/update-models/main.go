package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"FindAImage/internal/config"
	"FindAImage/internal/logger"
	"FindAImage/internal/service/catalog"
)

// update-models скачивает с Hugging Face список мультимодальных моделей и пишет CSV каталога.
func main() {
	cfg := config.NewConfig()

	sugar, err := logger.New(cfg.DebugMode)
	if err != nil {
		panic(err)
	}
	defer func() { _ = sugar.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	entries, err := catalog.Fetch(ctx, &http.Client{Timeout: time.Minute}, cfg.HFEndpoint, catalog.DefaultCategories)
	if err != nil {
		sugar.Fatalw("Failed to fetch models", "endpoint", cfg.HFEndpoint, "error", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(cfg.CatalogPath), ".models-*.csv")
	if err != nil {
		sugar.Fatalw("Failed to create catalog file", "error", err)
	}
	defer os.Remove(tmp.Name())
	if err := catalog.Write(tmp, entries); err != nil {
		_ = tmp.Close()
		sugar.Fatalw("Failed to write catalog", "error", err)
	}
	if err := tmp.Close(); err != nil {
		sugar.Fatalw("Failed to write catalog", "error", err)
	}
	if err := os.Rename(tmp.Name(), cfg.CatalogPath); err != nil {
		sugar.Fatalw("Failed to replace catalog", "path", cfg.CatalogPath, "error", err)
	}
	sugar.Infow("Model catalog updated", "path", cfg.CatalogPath, "models", len(entries))
}
