package media

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Cleaner удаляет забытые временные файлы по TTL в заданной директории.
type Cleaner struct {
	logger *zap.SugaredLogger
}

func NewCleaner(logger *zap.SugaredLogger) *Cleaner { return &Cleaner{logger: logger} }

// Clean удаляет из dir файлы по шаблону pattern старше ttl и возвращает число удалённых.
// Нужен после аварийного завершения процесса, когда defer не успел отработать.
func (c *Cleaner) Clean(dir, pattern string, ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	if dir == "" {
		dir = os.TempDir()
	}

	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		c.logger.Warnw("Некорректный шаблон для очистки", "pattern", pattern, "error", err)
		return 0
	}

	deadline := time.Now().Add(-ttl)
	removed := 0
	for _, full := range matches {
		fi, statErr := os.Stat(full)
		if statErr != nil {
			if !errors.Is(statErr, os.ErrNotExist) {
				c.logger.Warnw("Не удалось получить информацию о файле при очистке", "path", full, "error", statErr)
			}
			continue
		}
		if fi.IsDir() || !fi.ModTime().Before(deadline) {
			continue
		}
		if err := os.Remove(full); err != nil {
			c.logger.Warnw("Не удалось удалить старый файл", "path", full, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		c.logger.Infow("Очистка временных файлов выполнена", "dir", dir, "removed", removed)
	}
	return removed
}
