package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/peterh/liner"
	"go.uber.org/zap"

	"FindAImage/internal/ai"
	"FindAImage/internal/app/chatserver"
	"FindAImage/internal/app/repl"
	"FindAImage/internal/app/screenshotter"
	"FindAImage/internal/config"
	"FindAImage/internal/logger"
	"FindAImage/internal/service/capability"
	"FindAImage/internal/service/chat"
	"FindAImage/internal/service/media"
	"FindAImage/internal/service/votes"
)

func main() {
	cfg := config.NewConfig()

	sugar, err := logger.New(cfg.DebugMode)
	if err != nil {
		panic(err)
	}
	//сброс буфера логгера
	defer func() { _ = sugar.Sync() }()

	sugar.Infow("Starting aichat",
		"DebugMode", cfg.DebugMode,
		"endpoint", cfg.LLMEndpoint,
		"listen", cfg.ChatListen,
	)

	// подчищаем WAV, оставшиеся после аварийного завершения
	media.NewCleaner(sugar).Clean(cfg.AudioTempDir, media.TempPattern, cfg.AudioTempTTL)

	client := ai.NewChatClient(cfg.LLMEndpoint, cfg.LLMAPIKey, sugar)

	startCtx, cancel := context.WithTimeout(context.Background(), cfg.ProbeTimeout*time.Duration(cfg.ProbeAttempts))
	ids, err := client.ModelIDs(startCtx)
	cancel()
	if err != nil || len(ids) == 0 {
		sugar.Fatalw("No models available on the server", "endpoint", cfg.LLMEndpoint, "error", err)
	}
	model := cfg.DefaultModel
	if model == "" {
		model = ids[0]
	}

	resolver := capability.NewResolver(cfg.PropsRoot(), client, sugar,
		capability.WithRetry(cfg.ProbeAttempts, cfg.ProbeDelay),
		capability.WithTimeout(cfg.ProbeTimeout),
	)
	audio := media.NewAudioEncoder(cfg.AudioSampleRate, cfg.AudioTempDir)
	sugar.Infow("Chat ready", "model", model, "models", len(ids), "audioSampleRate", audio.SampleRate())
	executor := chat.NewExecutor(resolver, audio, client, sugar,
		chat.WithTemperature(cfg.ChatTemperature),
		chat.WithThumbnailSize(cfg.ThumbnailSize),
	)
	ledger := votes.NewLedger(cfg.VotesPath, cfg.VotesLock, sugar)

	if cfg.ChatListen != "" {
		if err := serve(cfg, executor, client, ledger, model, sugar); err != nil {
			sugar.Fatalw("Chat server failed", "error", err)
		}
		return
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	r := repl.New(executor, chat.NewState(uuid.NewString(), model), client, ledger, screenshotter.New(sugar), os.Stdout, sugar)

	// Ctrl+C во время ответа модели отменяет ход; в приглашении его обрабатывает liner
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)
	go func() {
		for range sigs {
			if !r.Interrupt() {
				sugar.Debugw("Nothing to cancel")
			}
		}
	}()

	if err := r.Run(context.Background(), line); err != nil {
		sugar.Errorw("Chat finished with error", "error", err)
	}
}

func serve(cfg *config.Config, executor *chat.Executor, models *ai.ChatClient, ledger *votes.Ledger, model string, sugar *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	mux.Handle("/ws", chatserver.New(executor, models, ledger, model, cfg.AudioTempDir, sugar))
	srv := &http.Server{Addr: cfg.ChatListen, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	sugar.Infow("Chat server started", "addr", cfg.ChatListen, "model", model)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shCtx)
	case err := <-errCh:
		return err
	}
}
