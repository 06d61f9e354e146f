package captioner

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"FindAImage/internal/ai"
	"FindAImage/internal/service/capability"
	"FindAImage/internal/service/media"
)

const (
	ImagePrompt = "Describe this image in 10-50 words."
	AudioPrompt = "Describe this audio in 10-50 words."

	DefaultInterval = 500 * time.Millisecond
)

// ErrBackendUnavailable — бэкенд известен, но не настроен (нет ключа и т.п.).
var ErrBackendUnavailable = errors.New("caption backend is not configured")

// Prompt возвращает запрос подписи для типа файла.
func Prompt(kind media.Kind) string {
	if kind == media.KindAudio {
		return AudioPrompt
	}
	return ImagePrompt
}

// Result — итог подписи одного файла в пакетном режиме.
type Result struct {
	File    string `json:"file"`
	Caption string `json:"caption,omitempty"`
	Error   string `json:"error,omitempty"`
	Err     error  `json:"-"`
}

// Captioner подписывает медиафайлы выбранным бэкендом. Между файлами нет общего изменяемого состояния.
type Captioner struct {
	describers  map[Kind]ai.Describer
	tags        capability.TagSource
	logger      *zap.SugaredLogger
	concurrency int
	interval    time.Duration
}

type Option func(*Captioner)

// WithConcurrency — сколько файлов подписывается одновременно в CaptionAll.
func WithConcurrency(n int) Option {
	return func(c *Captioner) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithInterval — минимальный интервал между запусками файлов в CaptionAll. 0 — без паузы.
func WithInterval(d time.Duration) Option { return func(c *Captioner) { c.interval = d } }

// New создаёт подписчика. describers — таблица бэкендов; без записи для Placeholder в неё ставится ai.StubClient.
func New(describers map[Kind]ai.Describer, tags capability.TagSource, logger *zap.SugaredLogger, opts ...Option) *Captioner {
	table := make(map[Kind]ai.Describer, len(describers)+1)
	maps.Copy(table, describers)
	if table[Placeholder] == nil {
		table[Placeholder] = ai.NewStubClient()
	}
	c := &Captioner{
		describers:  table,
		tags:        tags,
		logger:      logger,
		concurrency: 1,
		interval:    DefaultInterval,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Caption подписывает один файл.
func (c *Captioner) Caption(ctx context.Context, path string, b Backend) (string, error) {
	kind := media.KindOf(path)
	if kind == media.KindUnknown {
		return "", fmt.Errorf("caption %s: unsupported media type", filepath.Base(path))
	}
	d, ok := c.describers[b.Kind]
	if !ok || d == nil {
		return "", fmt.Errorf("%w: %s", ErrBackendUnavailable, b.Name())
	}

	started := time.Now()
	out, err := d.Describe(ctx, ai.DescribeRequest{Model: b.Model, Path: path, Kind: kind, Prompt: Prompt(kind)})
	if err != nil {
		c.logger.Warnw("Не удалось подписать файл", "file", filepath.Base(path), "backend", b.Name(), "error", err)
		return "", fmt.Errorf("caption %s with %s: %w", filepath.Base(path), b.Name(), err)
	}
	c.logger.Infow("Файл подписан", "file", filepath.Base(path), "backend", b.Name(), "took", time.Since(started).String())
	return out, nil
}

// CaptionAll подписывает файлы независимо друг от друга: ошибка одного не останавливает остальные.
// Порядок результатов совпадает с порядком paths.
func (c *Captioner) CaptionAll(ctx context.Context, paths []string, b Backend) []Result {
	results := make([]Result, len(paths))
	limit := rate.Inf
	if c.interval > 0 {
		limit = rate.Every(c.interval)
	}
	limiter := rate.NewLimiter(limit, 1)

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, p := range paths {
		results[i].File = filepath.Base(p)
		g.Go(func() error {
			if err := limiter.Wait(ctx); err != nil {
				results[i].Err = err
				results[i].Error = err.Error()
				return nil
			}
			out, err := c.Caption(ctx, p, b)
			if err != nil {
				results[i].Err = err
				results[i].Error = err.Error()
				return nil
			}
			results[i].Caption = out
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// AudioAffordance решает, предлагать ли подпись аудио для модели.
func (c *Captioner) AudioAffordance(model string) capability.Assessment {
	return capability.Assess(model, c.tags)
}
