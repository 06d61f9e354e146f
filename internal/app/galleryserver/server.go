package galleryserver

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"FindAImage/internal/service/captioner"
	"FindAImage/internal/service/gallery"
	"FindAImage/internal/service/media"
)

// Config описывает зависимости HTTP сервера галереи.
type Config struct {
	Addr        string
	Folder      *gallery.Folder
	Store       *gallery.Store
	Captioner   *captioner.Captioner
	LocalModels []string // модели сервера, пригодные для подписей
	Backend     string   // бэкенд, выбранный при старте
	Logger      *zap.SugaredLogger
}

// Server отдаёт страницу-конструктор галереи и подписывает файлы по запросу страницы.
type Server struct {
	addr      string
	router    *gin.Engine
	folder    *gallery.Folder
	store     *gallery.Store
	captioner *captioner.Captioner
	local     []string
	logger    *zap.SugaredLogger

	mu      sync.RWMutex
	backend captioner.Backend
}

func New(cfg Config) (*Server, error) {
	if cfg.Folder == nil || cfg.Store == nil || cfg.Captioner == nil {
		return nil, errors.New("gallery server requires folder, store and captioner")
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:9165"
	}
	backend, err := captioner.ParseBackend(cfg.Backend, cfg.LocalModels)
	if err != nil {
		cfg.Logger.Warnw("Неизвестный бэкенд подписей, используется lorem", "backend", cfg.Backend, "error", err)
		backend = captioner.Backend{Kind: captioner.Placeholder}
	}

	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		addr:      cfg.Addr,
		router:    gin.New(),
		folder:    cfg.Folder,
		store:     cfg.Store,
		captioner: cfg.Captioner,
		local:     cfg.LocalModels,
		logger:    cfg.Logger,
		backend:   backend,
	}
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.router.GET("/", s.index)
	s.router.GET("/model/:ai", s.selectModel)
	s.router.GET("/describe/:filename", s.describe)
	s.router.POST("/caption/:filename", s.setCaption)
	s.router.POST("/caption-all", s.captionAll)
	s.router.POST("/save", s.save)
	s.router.GET("/images/:filename", s.serveFile)
	s.router.GET("/media/:filename", s.serveFile)
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// Handler нужен тестам и внешним серверам.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Addr() string { return s.addr }

// Backend возвращает текущий бэкенд подписей.
func (s *Server) Backend() captioner.Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend
}

func (s *Server) page() gallery.Page {
	return gallery.Page{
		Listing:  s.folder.Listing(),
		Captions: s.store.Snapshot(),
		Models:   s.local,
		Selected: s.Backend().Name(),
	}
}

func (s *Server) index(c *gin.Context) {
	var buf bytes.Buffer
	if err := gallery.RenderPage(&buf, s.page()); err != nil {
		s.logger.Errorw("Не удалось отрисовать галерею", "error", err)
		c.String(http.StatusInternalServerError, "render gallery: %v", err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// selectModel переключает бэкенд и сообщает, предлагать ли подпись аудио.
func (s *Server) selectModel(c *gin.Context) {
	b, err := captioner.ParseBackend(c.Param("ai"), s.local)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.mu.Lock()
	s.backend = b
	s.mu.Unlock()

	audio, basis := s.audioAffordance(b)
	s.logger.Infow("Выбран бэкенд подписей", "backend", b.Name(), "audio", audio, "basis", basis)
	c.JSON(http.StatusOK, gin.H{"model": b.Name(), "audio": audio, "basis": basis})
}

func (s *Server) audioAffordance(b captioner.Backend) (bool, string) {
	switch b.Kind {
	case captioner.LocalModel:
		a := s.captioner.AudioAffordance(b.Model)
		return a.Audio, a.Basis.String()
	case captioner.HostedGemini, captioner.Placeholder:
		return true, "backend"
	default:
		return false, "backend"
	}
}

func (s *Server) describe(c *gin.Context) {
	name := c.Param("filename")
	path, err := s.folder.Path(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	caption, err := s.captioner.Caption(c.Request.Context(), path, s.Backend())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"description": "Error: " + err.Error(), "error": err.Error()})
		return
	}
	s.store.Set(name, caption)
	c.JSON(http.StatusOK, gin.H{"description": caption})
}

type captionBody struct {
	Caption string `json:"caption"`
}

// setCaption сохраняет подпись, отредактированную руками.
func (s *Server) setCaption(c *gin.Context) {
	name := c.Param("filename")
	if _, err := s.folder.Path(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	var body captionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.store.Set(name, body.Caption)
	c.JSON(http.StatusOK, gin.H{"file": name, "caption": body.Caption})
}

type captionAllBody struct {
	Files []string `json:"files"`
}

func (s *Server) captionAll(c *gin.Context) {
	var body captionAllBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(body.Files) == 0 {
		body.Files = s.folder.Listing().All()
	}

	results := make([]captioner.Result, len(body.Files))
	var paths []string
	var slots []int
	for i, name := range body.Files {
		path, err := s.folder.Path(name)
		if err != nil {
			results[i] = captioner.Result{File: name, Error: err.Error(), Err: err}
			continue
		}
		paths = append(paths, path)
		slots = append(slots, i)
	}

	started := time.Now()
	done := s.captioner.CaptionAll(c.Request.Context(), paths, s.Backend())
	failed := 0
	for j, r := range done {
		results[slots[j]] = r
		if r.Err == nil {
			s.store.Set(r.File, r.Caption)
		}
	}
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	s.logger.Infow("Массовая подпись завершена", "files", len(results), "failed", failed, "took", time.Since(started).String())
	c.JSON(http.StatusOK, gin.H{"results": results})
}

type saveBody struct {
	Captions gallery.Captions `json:"captions"`
}

// save переносит подписи со страницы в хранилище и пишет index.html в папку галереи.
func (s *Server) save(c *gin.Context) {
	var body saveBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	clean := gallery.Captions{}
	for name, caption := range body.Captions {
		if caption == gallery.Placeholder {
			caption = ""
		}
		clean[name] = caption
	}
	s.store.Merge(clean)

	path, err := gallery.SaveSnapshot(s.folder.Dir(), s.page())
	if err != nil {
		s.logger.Errorw("Не удалось сохранить галерею", "dir", s.folder.Dir(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.logger.Infow("Галерея сохранена", "path", path)
	c.JSON(http.StatusOK, gin.H{"path": path})
}

func (s *Server) serveFile(c *gin.Context) {
	path, err := s.folder.Path(c.Param("filename"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if mt := media.MimeType(path); mt != "" {
		c.Header("Content-Type", mt)
	}
	c.File(path)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debugw("HTTP",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"ip", c.ClientIP(),
			"dur", time.Since(start).String(),
		)
	}
}

// Start обслуживает запросы до отмены ctx или ошибки сервера.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Infow("Сервер галереи запущен", "addr", s.addr)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
