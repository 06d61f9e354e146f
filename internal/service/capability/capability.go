package capability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	defaultAttempts = 10
	defaultDelay    = time.Second
	defaultTimeout  = 5 * time.Second

	// Флаг llama.cpp, с которым модель запускается вместе с мультимодальным проектором.
	multimodalFlag = "--mmproj"
)

// ErrProbeFailed возвращается, когда /props так и не ответил 200 за все попытки.
var ErrProbeFailed = errors.New("capabilities probe failed")

// Record — какие модальности принимает модель.
type Record struct {
	Vision bool
	Audio  bool
}

// ModelInfo — модель из списка сервера. Args — свободная строка аргументов запуска (status.args), если сервер её отдаёт.
type ModelInfo struct {
	ID   string
	Args string
}

// ModelLister перечисляет модели сервера.
type ModelLister interface {
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// Resolver определяет возможности модели через /props с откатом на аргументы запуска.
type Resolver struct {
	http     *http.Client
	root     string
	lister   ModelLister
	logger   *zap.SugaredLogger
	attempts int
	delay    time.Duration
	timeout  time.Duration
}

// Option настраивает Resolver.
type Option func(*Resolver)

// WithRetry задаёт число попыток и паузу между ними.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(r *Resolver) {
		r.attempts = max(1, attempts)
		r.delay = max(0, delay)
	}
}

// WithTimeout задаёт таймаут одной попытки.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithHTTPClient подменяет HTTP-клиент.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) {
		if c != nil {
			r.http = c
		}
	}
}

// NewResolver создаёт резолвер. root — корень сервера без /v1, например http://localhost:8087.
func NewResolver(root string, lister ModelLister, logger *zap.SugaredLogger, opts ...Option) *Resolver {
	r := &Resolver{
		http:     http.DefaultClient,
		root:     strings.TrimRight(root, "/"),
		lister:   lister,
		logger:   logger,
		attempts: defaultAttempts,
		delay:    defaultDelay,
		timeout:  defaultTimeout,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve возвращает возможности модели. Ошибка после исчерпания попыток фатальна для хода.
func (r *Resolver) Resolve(ctx context.Context, model string) (Record, error) {
	body, err := r.probe(ctx, model)
	if err != nil {
		return Record{}, err
	}

	// пустой объект modalities считаем отсутствующим
	if modalities := gjson.GetBytes(body, "modalities"); modalities.IsObject() && len(modalities.Map()) > 0 {
		rec := Record{
			Vision: modalities.Get("vision").Bool(),
			Audio:  modalities.Get("audio").Bool(),
		}
		r.logger.Infow("Model capabilities", "model", model, "vision", rec.Vision, "audio", rec.Audio)
		return rec, nil
	}

	// /props молчит о модальностях — смотрим, запущена ли модель с проектором
	if r.lister == nil {
		return Record{}, nil
	}
	models, err := r.lister.ListModels(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("list models: %w", err)
	}
	for _, m := range models {
		if m.ID != model {
			continue
		}
		if strings.Contains(m.Args, multimodalFlag) {
			r.logger.Infow("Model launched with multimodal projector", "model", model)
			return Record{Vision: true, Audio: true}, nil
		}
		break
	}
	r.logger.Infow("Model is text-only", "model", model)
	return Record{}, nil
}

// probe опрашивает /props, повторяя запрос при сетевой ошибке или статусе != 200.
func (r *Resolver) probe(ctx context.Context, model string) ([]byte, error) {
	u := r.root + "/props?model=" + url.QueryEscape(model)

	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		body, err := r.probeOnce(ctx, u)
		if err == nil {
			return body, nil
		}
		lastErr = err
		r.logger.Warnw("Capabilities probe failed", "model", model, "attempt", attempt, "error", err)

		if attempt == r.attempts {
			break
		}
		t := time.NewTimer(r.delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, context.Cause(ctx)
		case <-t.C:
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrProbeFailed, r.attempts, lastErr)
}

func (r *Resolver) probeOnce(parent context.Context, u string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(parent, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("props: status=%d, body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}
