package chatserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"FindAImage/internal/service/chat"
	"FindAImage/internal/service/media"
	"FindAImage/internal/service/votes"
)

// ModelSource перечисляет модели сервера.
type ModelSource interface {
	ModelIDs(ctx context.Context) ([]string, error)
}

// Submitter выполняет ход диалога.
type Submitter interface {
	Submit(ctx context.Context, st *chat.State, text string, observe chat.Observer) (chat.Result, error)
}

// ClientFrame — сообщение от клиента.
type ClientFrame struct {
	Type  string `json:"type"` // submit, model, models, image, audio, clear, vote, cancel
	Text  string `json:"text,omitempty"`
	Model string `json:"model,omitempty"`
	Data  string `json:"data,omitempty"` // base64 или data URL
	Name  string `json:"name,omitempty"` // имя исходного аудиофайла, нужно расширение
	Liked bool   `json:"liked,omitempty"`
}

// ServerFrame — сообщение клиенту.
type ServerFrame struct {
	Type       string   `json:"type"` // session, phase, fragment, settled, error, models, votes, ok
	ID         string   `json:"id,omitempty"`
	Phase      string   `json:"phase,omitempty"`
	Text       string   `json:"text,omitempty"`
	Throughput string   `json:"throughput,omitempty"`
	Error      string   `json:"error,omitempty"`
	Models     []string `json:"models,omitempty"`
	Model      string   `json:"model,omitempty"`
	Up         int      `json:"up,omitempty"`
	Down       int      `json:"down,omitempty"`
}

// Server — WebSocket транспорт чата: одна сессия chat.State на соединение.
type Server struct {
	executor     Submitter
	models       ModelSource
	votes        *votes.Ledger
	defaultModel string
	tempDir      string
	logger       *zap.SugaredLogger
	upgrader     websocket.Upgrader
}

func New(executor Submitter, models ModelSource, ledger *votes.Ledger, defaultModel, tempDir string, logger *zap.SugaredLogger) *Server {
	return &Server{
		executor:     executor,
		models:       models,
		votes:        ledger,
		defaultModel: defaultModel,
		tempDir:      tempDir,
		logger:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	sess := &session{
		srv:   s,
		conn:  conn,
		state: chat.NewState(uuid.NewString(), s.defaultModel),
	}
	s.logger.Infow("Chat session opened", "session", sess.state.ID, "remote", r.RemoteAddr)
	sess.run(r.Context())
	s.logger.Infow("Chat session closed", "session", sess.state.ID)
}

type session struct {
	srv   *Server
	conn  *websocket.Conn
	state *chat.State

	writeMu sync.Mutex
	turns   sync.WaitGroup
	uploads []string
}

func (s *session) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		s.state.Cancel()
		s.turns.Wait()
		s.removeUploads()
		_ = s.conn.Close()
	}()

	s.send(ServerFrame{Type: "session", ID: s.state.ID, Model: s.state.Model()})
	for {
		var f ClientFrame
		if err := s.conn.ReadJSON(&f); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.srv.logger.Debugw("Chat session read ended", "session", s.state.ID, "error", err)
			}
			return
		}
		if err := s.handle(ctx, f); err != nil {
			s.send(ServerFrame{Type: "error", Error: err.Error()})
		}
	}
}

func (s *session) handle(ctx context.Context, f ClientFrame) error {
	switch f.Type {
	case "submit":
		if s.state.Busy() {
			return chat.ErrTurnInProgress
		}
		s.turns.Add(1)
		go func() {
			defer s.turns.Done()
			s.submit(ctx, f.Text)
		}()
		return nil
	case "cancel":
		s.state.Cancel()
		return nil
	case "model":
		if f.Model == "" {
			return errors.New("model is required")
		}
		s.state.SelectModel(f.Model)
		s.send(ServerFrame{Type: "ok", Model: f.Model})
		return nil
	case "models":
		ids, err := s.srv.models.ModelIDs(ctx)
		if err != nil {
			return err
		}
		s.send(ServerFrame{Type: "models", Models: ids, Model: s.state.Model()})
		return nil
	case "image":
		return s.setImage(f.Data)
	case "audio":
		return s.setAudio(f.Data, f.Name)
	case "clear":
		if err := s.state.Reset(); err != nil {
			return err
		}
		s.state.ClearMedia()
		s.send(ServerFrame{Type: "ok"})
		return nil
	case "vote":
		t, err := s.srv.votes.Record(s.state.Model(), f.Liked)
		if err != nil {
			return err
		}
		s.send(ServerFrame{Type: "votes", Model: s.state.Model(), Up: t.Up, Down: t.Down})
		return nil
	default:
		return fmt.Errorf("unknown frame type %q", f.Type)
	}
}

func (s *session) submit(ctx context.Context, text string) {
	sent := 0
	res, err := s.srv.executor.Submit(ctx, s.state, text, func(ev chat.Event) {
		if ev.Phase == chat.PhaseStreaming && ev.Message.Text != "" {
			// наблюдатель получает накопленный текст, клиенту уходит только прирост
			s.send(ServerFrame{Type: "fragment", Text: ev.Message.Text[sent:]})
			sent = len(ev.Message.Text)
			return
		}
		s.send(ServerFrame{Type: "phase", Phase: ev.Phase.String()})
	})
	if err != nil {
		s.send(ServerFrame{Type: "error", Error: err.Error()})
		return
	}
	frame := ServerFrame{Type: "settled", Text: res.Reply.Text, Throughput: res.Throughput}
	if res.Err != nil {
		frame.Error = res.Err.Error()
	}
	s.send(frame)
}

func (s *session) setImage(data string) error {
	raw, err := decodePayload(data)
	if err != nil {
		return fmt.Errorf("image: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("image: %w", err)
	}
	s.state.SetImage(img)
	s.send(ServerFrame{Type: "ok"})
	return nil
}

// setAudio сохраняет клип во временный файл: кодировщику нужен путь. Файлы удаляются при закрытии сессии.
func (s *session) setAudio(data, name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	if media.KindOf("clip"+ext) != media.KindAudio {
		return fmt.Errorf("audio: unsupported file name %q", name)
	}
	raw, err := decodePayload(data)
	if err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	f, err := os.CreateTemp(s.srv.tempDir, "upload-*"+ext)
	if err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	s.uploads = append(s.uploads, f.Name())
	if _, err := f.Write(raw); err != nil {
		_ = f.Close()
		return fmt.Errorf("audio: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	s.state.SetAudio(f.Name())
	s.send(ServerFrame{Type: "ok"})
	return nil
}

func (s *session) removeUploads() {
	for _, p := range s.uploads {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.srv.logger.Warnw("Не удалось удалить загруженный файл", "path", p, "error", err)
		}
	}
}

func (s *session) send(f ServerFrame) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(f); err != nil {
		s.srv.logger.Debugw("Chat frame not delivered", "session", s.state.ID, "type", f.Type, "error", err)
	}
}

// decodePayload принимает data URL или голый base64.
func decodePayload(data string) ([]byte, error) {
	if strings.HasPrefix(data, "data:") {
		_, b64, ok := strings.Cut(data, ",")
		if !ok {
			return nil, errors.New("malformed data URL")
		}
		data = b64
	}
	if data == "" {
		return nil, errors.New("empty payload")
	}
	return base64.StdEncoding.DecodeString(data)
}
