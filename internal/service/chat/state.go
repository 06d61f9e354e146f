package chat

import (
	"context"
	"errors"
	"image"
	"sync"

	"FindAImage/internal/service/capability"
)

var (
	// ErrTurnInProgress — в этой сессии уже выполняется запрос.
	ErrTurnInProgress = errors.New("turn already in progress")
	// ErrTurnCancelled — причина отмены хода пользователем.
	ErrTurnCancelled = errors.New("turn cancelled")
)

// Phase — стадия выполнения хода.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingCapabilities
	PhaseSending
	PhaseStreaming
	PhaseSettled
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingCapabilities:
		return "awaiting_capabilities"
	case PhaseSending:
		return "sending"
	case PhaseStreaming:
		return "streaming"
	case PhaseSettled:
		return "settled"
	default:
		return "idle"
	}
}

// State — состояние одной сессии диалога: история, выбранная модель и ожидающие медиа.
// Читать можно из любых горутин, пишет только Executor.
type State struct {
	ID string

	mu         sync.Mutex
	history    []Message
	model      string
	modelDirty bool
	caps       *capability.Record
	image      image.Image
	audioPath  string
	phase      Phase
	busy       bool
	cancel     context.CancelCauseFunc
}

func NewState(id, model string) *State {
	return &State{ID: id, model: model}
}

// SelectModel меняет модель. Возможности будут перезапрошены только если id изменился.
func (s *State) SelectModel(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if model == s.model {
		return
	}
	s.model = model
	s.modelDirty = true
	s.caps = nil
}

func (s *State) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// History возвращает копию истории.
func (s *State) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.history))
	for i, m := range s.history {
		out[i] = m.clone()
	}
	return out
}

func (s *State) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Capabilities возвращает закешированные возможности текущей модели.
func (s *State) Capabilities() (capability.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.caps == nil {
		return capability.Record{}, false
	}
	return *s.caps, true
}

func (s *State) SetImage(img image.Image) {
	s.mu.Lock()
	s.image = img
	s.mu.Unlock()
}

func (s *State) SetAudio(path string) {
	s.mu.Lock()
	s.audioPath = path
	s.mu.Unlock()
}

// ClearMedia сбрасывает ожидающие картинку и аудио.
func (s *State) ClearMedia() {
	s.mu.Lock()
	s.image = nil
	s.audioPath = ""
	s.mu.Unlock()
}

// PendingMedia возвращает медиа, которые уйдут со следующим ходом.
func (s *State) PendingMedia() (image.Image, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.image, s.audioPath
}

// Reset очищает историю. Следующий ход заново установит системный промпт.
func (s *State) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrTurnInProgress
	}
	s.history = nil
	s.caps = nil
	return nil
}

// Busy сообщает, выполняется ли сейчас ход.
func (s *State) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Cancel отменяет текущий ход. Возвращает false, если отменять нечего.
func (s *State) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.busy || s.cancel == nil {
		return false
	}
	s.cancel(ErrTurnCancelled)
	return true
}

func (s *State) begin(cancel context.CancelCauseFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrTurnInProgress
	}
	s.busy = true
	s.cancel = cancel
	return nil
}

func (s *State) finish() {
	s.mu.Lock()
	s.busy = false
	s.cancel = nil
	s.phase = PhaseIdle
	s.mu.Unlock()
}

func (s *State) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

func (s *State) needsCapabilities() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history) == 0 || s.modelDirty || s.caps == nil
}

// installCapabilities кеширует возможности и ставит системный промпт первым сообщением.
// Существующее системное сообщение заменяется, чтобы оно оставалось единственным.
func (s *State) installCapabilities(rec capability.Record, prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sys := Message{Role: RoleSystem, Text: prompt}
	if len(s.history) > 0 && s.history[0].Role == RoleSystem {
		s.history[0] = sys
	} else {
		s.history = append([]Message{sys}, s.history...)
	}
	s.caps = &rec
	s.modelDirty = false
}

func (s *State) append(m Message) {
	s.mu.Lock()
	s.history = append(s.history, m)
	s.mu.Unlock()
}
