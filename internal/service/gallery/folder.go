package gallery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"FindAImage/internal/service/media"
)

// ErrNotInGallery — файла нет в папке галереи или имя выходит за её пределы.
var ErrNotInGallery = errors.New("file is not in the gallery")

// Listing — медиафайлы папки, отсортированные по имени.
type Listing struct {
	Images []string
	Audio  []string
}

// All возвращает сначала картинки, затем аудио — в порядке показа на странице.
func (l Listing) All() []string {
	return append(append(make([]string, 0, len(l.Images)+len(l.Audio)), l.Images...), l.Audio...)
}

// Scan читает папку и раскладывает файлы по типам. Подпапки и прочие файлы пропускаются.
func Scan(dir string) (Listing, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Listing{}, fmt.Errorf("scan gallery: %w", err)
	}
	var l Listing
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch media.KindOf(e.Name()) {
		case media.KindImage:
			l.Images = append(l.Images, e.Name())
		case media.KindAudio:
			l.Audio = append(l.Audio, e.Name())
		}
	}
	slices.Sort(l.Images)
	slices.Sort(l.Audio)
	return l, nil
}

// Folder — папка галереи с кешированным списком файлов.
type Folder struct {
	dir    string
	logger *zap.SugaredLogger

	mu      sync.RWMutex
	listing Listing
}

func NewFolder(dir string, logger *zap.SugaredLogger) (*Folder, error) {
	f := &Folder{dir: dir, logger: logger}
	if err := f.Refresh(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Folder) Dir() string { return f.dir }

func (f *Folder) Listing() Listing {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.listing
}

// Refresh перечитывает папку.
func (f *Folder) Refresh() error {
	l, err := Scan(f.dir)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.listing = l
	f.mu.Unlock()
	return nil
}

// Path возвращает полный путь к медиафайлу галереи по его имени.
func (f *Folder) Path(name string) (string, error) {
	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: %q", ErrNotInGallery, name)
	}
	l := f.Listing()
	if !slices.Contains(l.Images, name) && !slices.Contains(l.Audio, name) {
		return "", fmt.Errorf("%w: %q", ErrNotInGallery, name)
	}
	return filepath.Join(f.dir, name), nil
}

// Watch обновляет список при появлении, удалении и переименовании файлов, пока не отменён ctx.
func (f *Folder) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch gallery: %w", err)
	}
	defer w.Close()
	if err := w.Add(f.dir); err != nil {
		return fmt.Errorf("watch gallery: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if media.KindOf(ev.Name) == media.KindUnknown {
				continue
			}
			if err := f.Refresh(); err != nil {
				f.logger.Warnw("Не удалось обновить список файлов галереи", "dir", f.dir, "error", err)
				continue
			}
			f.logger.Debugw("Список файлов галереи обновлён", "event", ev.Op.String(), "file", filepath.Base(ev.Name))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			f.logger.Warnw("Ошибка наблюдения за папкой галереи", "dir", f.dir, "error", err)
		}
	}
}
