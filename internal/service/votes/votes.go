package votes

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

// Tally — счётчик голосов за модель.
type Tally struct {
	Up   int `json:"up"`
	Down int `json:"down"`
}

// Ledger хранит голоса в JSON файле: model id -> Tally.
// Каждая запись перечитывает файл и пишет его целиком. Без блокировки
// параллельные процессы могут потерять голоса друг друга (побеждает последний).
type Ledger struct {
	path   string
	lock   bool
	logger *zap.SugaredLogger
}

// NewLedger создаёт журнал. lock включает межпроцессную блокировку на время чтения-записи.
func NewLedger(path string, lock bool, logger *zap.SugaredLogger) *Ledger {
	return &Ledger{path: path, lock: lock, logger: logger}
}

// Record учитывает голос за модель и возвращает её новый счётчик.
// Отсутствующий или битый файл считается пустым; ошибка записи возвращается.
func (l *Ledger) Record(model string, liked bool) (Tally, error) {
	if l.lock {
		fl := flock.New(l.path + ".lock")
		if err := fl.Lock(); err != nil {
			return Tally{}, fmt.Errorf("lock votes: %w", err)
		}
		defer func() {
			if err := fl.Unlock(); err != nil {
				l.logger.Warnw("Не удалось снять блокировку голосов", "path", l.path, "error", err)
			}
		}()
	}

	all, err := l.read()
	if err != nil {
		l.logger.Warnw("Файл голосов не прочитан, начинаем с пустого", "path", l.path, "error", err)
		all = map[string]Tally{}
	}

	t := all[model]
	if liked {
		t.Up++
	} else {
		t.Down++
	}
	all[model] = t

	if err := l.write(all); err != nil {
		return Tally{}, err
	}
	l.logger.Infow("Голос учтён", "model", model, "liked", liked, "up", t.Up, "down", t.Down)
	return t, nil
}

// Load возвращает все счётчики. Отсутствующий файл — пустая карта без ошибки.
func (l *Ledger) Load() (map[string]Tally, error) {
	return l.read()
}

func (l *Ledger) read() (map[string]Tally, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]Tally{}, nil
	}
	if err != nil {
		return map[string]Tally{}, fmt.Errorf("read votes: %w", err)
	}
	all := map[string]Tally{}
	if err := json.Unmarshal(data, &all); err != nil {
		return map[string]Tally{}, fmt.Errorf("parse votes: %w", err)
	}
	// литерал null обнуляет карту без ошибки
	if all == nil {
		all = map[string]Tally{}
	}
	return all, nil
}

func (l *Ledger) write(all map[string]Tally) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(l.path, data, 0o644); err != nil {
		return fmt.Errorf("write votes: %w", err)
	}
	return nil
}
