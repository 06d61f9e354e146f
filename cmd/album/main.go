package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"FindAImage/internal/ai"
	"FindAImage/internal/app/galleryserver"
	"FindAImage/internal/config"
	"FindAImage/internal/logger"
	"FindAImage/internal/service/capability"
	"FindAImage/internal/service/captioner"
	"FindAImage/internal/service/catalog"
	"FindAImage/internal/service/gallery"
	"FindAImage/internal/service/media"
)

func main() {
	cfg := config.NewConfig()

	sugar, err := logger.New(cfg.DebugMode)
	if err != nil {
		panic(err)
	}
	defer func() { _ = sugar.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sugar.Infow("Starting album",
		"dir", cfg.GalleryDir,
		"addr", cfg.GalleryAddr,
		"backend", cfg.CaptionBackend,
	)

	folder, err := gallery.NewFolder(cfg.GalleryDir, sugar)
	if err != nil {
		sugar.Fatalw("Cannot read gallery folder", "dir", cfg.GalleryDir, "error", err)
	}
	go func() {
		if err := folder.Watch(ctx); err != nil {
			sugar.Warnw("Gallery watcher stopped", "error", err)
		}
	}()

	captions, err := gallery.LoadCaptions(folder.Dir(), folder.Listing(), gallery.XMPKeywords)
	if err != nil {
		sugar.Warnw("Captions not loaded, starting empty", "error", err)
		captions = gallery.Captions{}
	}

	var tags capability.TagSource
	if cat, err := catalog.Load(cfg.CatalogPath); err != nil {
		sugar.Warnw("Model catalog not loaded, audio support is guessed from model names", "path", cfg.CatalogPath, "error", err)
	} else {
		tags = cat
	}

	media.NewCleaner(sugar).Clean(cfg.AudioTempDir, media.TempPattern, cfg.AudioTempTTL)

	chatClient := ai.NewChatClient(cfg.LLMEndpoint, cfg.LLMAPIKey, sugar)
	ids, err := chatClient.ModelIDs(ctx)
	if err != nil {
		sugar.Warnw("Local models are not available", "endpoint", cfg.LLMEndpoint, "error", err)
	}
	local := captioner.LocalModels(ids)

	describers := map[captioner.Kind]ai.Describer{
		captioner.Placeholder: ai.NewStubClient(),
		captioner.LocalModel: ai.NewLocalDescriber(chatClient, media.NewAudioEncoder(cfg.AudioSampleRate, cfg.AudioTempDir), cfg.ThumbnailSize),
	}
	if cfg.OpenAI.APIKey != "" {
		vc, err := ai.NewVisionClient(cfg.OpenAI.APIKey, cfg.OpenAI.CaptionModel, sugar)
		if err != nil {
			sugar.Warnw("OpenAI captions disabled", "error", err)
		} else {
			describers[captioner.HostedOpenAI] = vc
		}
	}
	if cfg.Gemini.Enabled {
		hc, err := ai.GeminiHTTPClient(ctx, cfg.Gemini.APIKey)
		if err != nil {
			sugar.Warnw("Gemini captions disabled", "error", err)
		} else {
			describers[captioner.HostedGemini] = ai.NewGeminiClient(hc, cfg.Gemini.Endpoint, cfg.Gemini.Model, cfg.Gemini.APIKey, sugar)
		}
	}

	capt := captioner.New(describers, tags, sugar,
		captioner.WithConcurrency(cfg.CaptionConcurrency),
		captioner.WithInterval(cfg.CaptionInterval),
	)

	srv, err := galleryserver.New(galleryserver.Config{
		Addr:        cfg.GalleryAddr,
		Folder:      folder,
		Store:       gallery.NewStore(captions),
		Captioner:   capt,
		LocalModels: local,
		Backend:     cfg.CaptionBackend,
		Logger:      sugar,
	})
	if err != nil {
		sugar.Fatalw("Cannot create gallery server", "error", err)
	}
	if err := srv.Start(ctx); err != nil {
		sugar.Fatalw("Gallery server failed", "error", err)
	}
}
