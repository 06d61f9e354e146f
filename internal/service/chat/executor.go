package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"FindAImage/internal/service/capability"
	"FindAImage/internal/service/media"
)

// DefaultTemperature — температура запросов диалога по умолчанию.
const DefaultTemperature = 0.2

// CapabilityResolver узнаёт, что умеет модель.
type CapabilityResolver interface {
	Resolve(ctx context.Context, model string) (capability.Record, error)
}

// AudioEncoder нормализует аудиофайл для отправки модели.
type AudioEncoder interface {
	Encode(path string) (media.Audio, error)
}

// Request — запрос потокового ответа по всей истории.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
}

// Stream — поток текстовых фрагментов ответа.
type Stream interface {
	Next() bool
	Fragment() string
	Err() error
	Close() error
}

// Completer отправляет историю модели и возвращает поток ответа.
type Completer interface {
	Stream(ctx context.Context, req Request) (Stream, error)
}

// Event — уведомление наблюдателя о ходе. Message заполнен для Streaming и Settled.
type Event struct {
	Phase   Phase
	Message Message
}

// Observer вызывается синхронно на каждую смену фазы и каждый фрагмент.
type Observer func(Event)

// Result — итог хода. Err заполнен, если запрос к модели не удался; в историю
// при этом уже записано сообщение об ошибке.
type Result struct {
	Reply      Message
	Fragments  int
	Throughput string
	Err        error
}

type Executor struct {
	resolver    CapabilityResolver
	audio       AudioEncoder
	completer   Completer
	logger      *zap.SugaredLogger
	temperature float64
	thumbnail   int
	now         func() time.Time
}

type Option func(*Executor)

func WithTemperature(t float64) Option { return func(e *Executor) { e.temperature = t } }

func WithThumbnailSize(size int) Option { return func(e *Executor) { e.thumbnail = size } }

// WithClock подменяет часы для замера скорости.
func WithClock(now func() time.Time) Option { return func(e *Executor) { e.now = now } }

func NewExecutor(resolver CapabilityResolver, audio AudioEncoder, completer Completer, logger *zap.SugaredLogger, opts ...Option) *Executor {
	e := &Executor{
		resolver:    resolver,
		audio:       audio,
		completer:   completer,
		logger:      logger,
		temperature: DefaultTemperature,
		thumbnail:   media.DefaultThumbnailSize,
		now:         time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Submit выполняет один ход диалога: при необходимости узнаёт возможности модели,
// собирает сообщение пользователя, отправляет историю и собирает потоковый ответ.
// Ошибка возвращается только если ход не начался (занято, не удалось узнать возможности);
// ошибки модели попадают в историю и в Result.Err.
func (e *Executor) Submit(ctx context.Context, st *State, text string, observe Observer) (Result, error) {
	if observe == nil {
		observe = func(Event) {}
	}
	turnCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if err := st.begin(cancel); err != nil {
		return Result{}, err
	}
	defer st.finish()

	model := st.Model()
	if st.needsCapabilities() {
		e.enter(st, observe, PhaseAwaitingCapabilities, Message{})
		rec, err := e.resolver.Resolve(turnCtx, model)
		if err != nil {
			e.logger.Errorw("Не удалось определить возможности модели", "session", st.ID, "model", model, "error", err)
			return Result{}, fmt.Errorf("resolve capabilities of %s: %w", model, err)
		}
		st.installCapabilities(rec, capability.SystemPrompt(rec))
		e.logger.Infow("Возможности модели", "session", st.ID, "model", model, "vision", rec.Vision, "audio", rec.Audio)
	}

	e.enter(st, observe, PhaseSending, Message{})
	st.append(e.userMessage(st, text))

	req := Request{Model: model, Messages: st.History(), Temperature: e.temperature}
	start := e.now()
	stream, err := e.completer.Stream(turnCtx, req)
	if err != nil {
		return e.fail(turnCtx, st, observe, "", err), nil
	}
	defer stream.Close()

	e.enter(st, observe, PhaseStreaming, Message{})
	acc := NewAccumulator()
	for stream.Next() {
		if acc.Add(stream.Fragment()) {
			observe(Event{Phase: PhaseStreaming, Message: acc.Message()})
		}
	}
	if err := stream.Err(); err != nil {
		return e.fail(turnCtx, st, observe, acc.Text(), err), nil
	}
	if turnCtx.Err() != nil {
		return e.fail(turnCtx, st, observe, acc.Text(), turnCtx.Err()), nil
	}

	reply := acc.Message()
	st.append(reply)
	res := Result{
		Reply:      reply,
		Fragments:  acc.Count(),
		Throughput: Throughput(acc.Count(), e.now().Sub(start)),
	}
	e.enter(st, observe, PhaseSettled, reply)
	e.logger.Debugw("Ход завершён", "session", st.ID, "model", model, "fragments", res.Fragments, "throughput", res.Throughput)
	return res, nil
}

// userMessage собирает блоки в порядке текст, картинка, аудио.
// Ошибки кодирования медиа превращаются в текстовые блоки и не прерывают ход.
func (e *Executor) userMessage(st *State, text string) Message {
	img, audioPath := st.PendingMedia()
	blocks := []Block{TextBlock(text)}

	if img != nil {
		url, err := media.EncodeImage(img, e.thumbnail)
		if err != nil {
			e.logger.Warnw("Не удалось подготовить картинку", "session", st.ID, "error", err)
			blocks = append(blocks, TextBlock("[Image Error]: Failed to process image: "+err.Error()))
		} else {
			blocks = append(blocks, ImageBlock(url))
		}
	}

	if audioPath != "" {
		a, err := e.audio.Encode(audioPath)
		if err != nil {
			e.logger.Warnw("Не удалось подготовить аудио", "session", st.ID, "path", audioPath, "error", err)
			blocks = append(blocks, TextBlock("[Audio Error]: Failed to process audio: "+err.Error()))
		} else {
			blocks = append(blocks, AudioBlock(a.Data, a.Format))
		}
	}

	return Message{Role: RoleUser, Blocks: blocks}
}

// fail записывает частичный ответ (если он есть) и сообщение об ошибке.
func (e *Executor) fail(ctx context.Context, st *State, observe Observer, partial string, err error) Result {
	if cause := context.Cause(ctx); cause != nil && errors.Is(err, ctx.Err()) {
		err = cause
	}
	e.logger.Errorw("Ошибка запроса к модели", "session", st.ID, "model", st.Model(), "error", err)

	if partial != "" {
		st.append(Message{Role: RoleAssistant, Text: partial})
	}
	msg := Message{Role: RoleAssistant, Text: strings.ReplaceAll("Error: "+err.Error(), "\n", "<br>")}
	st.append(msg)
	e.enter(st, observe, PhaseSettled, msg)
	return Result{Reply: msg, Throughput: ZeroThroughput, Err: err}
}

func (e *Executor) enter(st *State, observe Observer, p Phase, m Message) {
	st.setPhase(p)
	observe(Event{Phase: p, Message: m})
}
