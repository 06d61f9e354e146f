package repl

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/peterh/liner"
	"go.uber.org/zap"

	"FindAImage/internal/service/chat"
	"FindAImage/internal/service/media"
	"FindAImage/internal/service/votes"
)

// LineReader — источник строк ввода (liner в терминале, заглушка в тестах).
type LineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

// ModelSource перечисляет модели сервера.
type ModelSource interface {
	ModelIDs(ctx context.Context) ([]string, error)
}

// ScreenSource снимает экран для команды /screenshot.
type ScreenSource interface {
	Capture() (image.Image, error)
}

// Submitter выполняет ход диалога.
type Submitter interface {
	Submit(ctx context.Context, st *chat.State, text string, observe chat.Observer) (chat.Result, error)
}

const help = `Commands:
  /models           list server models
  /model <id>       switch model
  /image <path>     attach an image to the next messages
  /audio <path>     attach an audio clip to the next messages
  /screenshot       attach a screenshot
  /clear            clear history and attachments
  /like, /dislike   vote for the current model
  /votes            show vote tally
  /history          show the conversation
  /quit             exit
Ctrl+C while the model is answering cancels the answer.`

// REPL — терминальный чат поверх Executor.
type REPL struct {
	executor Submitter
	state    *chat.State
	models   ModelSource
	votes    *votes.Ledger
	screen   ScreenSource
	out      io.Writer
	logger   *zap.SugaredLogger
}

func New(executor Submitter, st *chat.State, models ModelSource, ledger *votes.Ledger, screen ScreenSource, out io.Writer, logger *zap.SugaredLogger) *REPL {
	return &REPL{executor: executor, state: st, models: models, votes: ledger, screen: screen, out: out, logger: logger}
}

// Interrupt отменяет текущий ответ модели. Возвращает false, если отменять нечего.
func (r *REPL) Interrupt() bool { return r.state.Cancel() }

// Run читает строки до /quit, EOF или Ctrl+C в приглашении.
func (r *REPL) Run(ctx context.Context, in LineReader) error {
	fmt.Fprintf(r.out, "Model: %s. Type /help for commands.\n", r.state.Model())
	for {
		line, err := in.Prompt(r.prompt())
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out)
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		in.AppendHistory(line)

		more, err := r.Handle(ctx, line)
		if err != nil {
			fmt.Fprintf(r.out, "[Error] %v\n", err)
		}
		if !more {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (r *REPL) prompt() string {
	img, audio := r.state.PendingMedia()
	var tags []string
	if img != nil {
		tags = append(tags, "image")
	}
	if audio != "" {
		tags = append(tags, "audio")
	}
	if len(tags) == 0 {
		return r.state.Model() + "> "
	}
	return fmt.Sprintf("%s [%s]> ", r.state.Model(), strings.Join(tags, "+"))
}

// Handle выполняет одну строку: команду или сообщение модели. false — пора выходить.
func (r *REPL) Handle(ctx context.Context, line string) (bool, error) {
	if !strings.HasPrefix(line, "/") {
		return true, r.submit(ctx, line)
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit", "/exit":
		return false, nil
	case "/help":
		fmt.Fprintln(r.out, help)
	case "/models":
		return true, r.listModels(ctx)
	case "/model":
		if arg == "" {
			return true, errors.New("usage: /model <id>")
		}
		r.state.SelectModel(arg)
		fmt.Fprintf(r.out, "Model switched to %s\n", arg)
	case "/image":
		img, err := media.DecodeImageFile(arg)
		if err != nil {
			return true, err
		}
		r.state.SetImage(img)
		fmt.Fprintf(r.out, "Image attached: %s\n", arg)
	case "/audio":
		if media.KindOf(arg) != media.KindAudio {
			return true, fmt.Errorf("not an audio file: %q", arg)
		}
		if _, err := os.Stat(arg); err != nil {
			return true, err
		}
		r.state.SetAudio(arg)
		fmt.Fprintf(r.out, "Audio attached: %s\n", arg)
	case "/screenshot":
		if r.screen == nil {
			return true, errors.New("screenshots are not available")
		}
		img, err := r.screen.Capture()
		if err != nil {
			return true, err
		}
		r.state.SetImage(img)
		fmt.Fprintf(r.out, "Screenshot attached (%dx%d)\n", img.Bounds().Dx(), img.Bounds().Dy())
	case "/clear":
		if err := r.state.Reset(); err != nil {
			return true, err
		}
		r.state.ClearMedia()
		fmt.Fprintln(r.out, "Conversation cleared")
	case "/like", "/dislike":
		t, err := r.votes.Record(r.state.Model(), cmd == "/like")
		if err != nil {
			return true, err
		}
		fmt.Fprintf(r.out, "%s: %d up, %d down\n", r.state.Model(), t.Up, t.Down)
	case "/votes":
		return true, r.showVotes()
	case "/history":
		for _, m := range r.state.History() {
			fmt.Fprintf(r.out, "%s: %s\n", m.Role, m.Content())
		}
	default:
		return true, fmt.Errorf("unknown command %s, try /help", cmd)
	}
	return true, nil
}

func (r *REPL) submit(ctx context.Context, text string) error {
	printed := 0
	res, err := r.executor.Submit(ctx, r.state, text, func(ev chat.Event) {
		switch ev.Phase {
		case chat.PhaseAwaitingCapabilities:
			fmt.Fprintln(r.out, "(checking model capabilities...)")
		case chat.PhaseStreaming:
			if len(ev.Message.Text) > printed {
				fmt.Fprint(r.out, ev.Message.Text[printed:])
				printed = len(ev.Message.Text)
			}
		}
	})
	if err != nil {
		return err
	}
	if res.Err != nil {
		if printed > 0 {
			fmt.Fprintln(r.out)
		}
		fmt.Fprintln(r.out, res.Reply.Text)
		return nil
	}
	fmt.Fprintf(r.out, "\n(%s)\n", res.Throughput)
	return nil
}

func (r *REPL) listModels(ctx context.Context) error {
	ids, err := r.models.ModelIDs(ctx)
	if err != nil {
		return err
	}
	current := r.state.Model()
	for _, id := range ids {
		mark := " "
		if id == current {
			mark = "*"
		}
		fmt.Fprintf(r.out, "%s %s\n", mark, id)
	}
	return nil
}

func (r *REPL) showVotes() error {
	all, err := r.votes.Load()
	if err != nil {
		return err
	}
	if len(all) == 0 {
		fmt.Fprintln(r.out, "No votes yet")
		return nil
	}
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(r.out, "%-40s %4d up %4d down\n", name, all[name].Up, all[name].Down)
	}
	return nil
}
