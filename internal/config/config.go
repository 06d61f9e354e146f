package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	DebugMode bool `env:"DEBUG_MODE"` //Режим дебага

	// Локальный OpenAI‑совместимый сервер (llama.cpp / llama-swap)
	LLMEndpoint     string  `env:"LLM_ENDPOINT"`     // Базовый URL, обычно заканчивается на /v1
	LLMAPIKey       string  `env:"LLM_API_KEY"`      // Ключ; локальным серверам обычно безразличен
	ChatTemperature float64 `env:"CHAT_TEMPERATURE"` // Температура для диалоговых запросов
	DefaultModel    string  `env:"CHAT_MODEL"`       // Модель при старте; пусто — первая из списка сервера

	// Опрос /props
	ProbeAttempts int           `env:"PROBE_ATTEMPTS"` // Сколько раз опрашивать /props
	ProbeDelay    time.Duration `env:"PROBE_DELAY"`    // Пауза между попытками
	ProbeTimeout  time.Duration `env:"PROBE_TIMEOUT"`  // Таймаут одной попытки

	// Медиа
	ThumbnailSize   int           `env:"THUMBNAIL_SIZE"`    // Сторона квадратной миниатюры для моделей
	AudioSampleRate int           `env:"AUDIO_SAMPLE_RATE"` // Частота, к которой приводится аудио
	AudioTempDir    string        `env:"AUDIO_TEMP_DIR"`    // Куда писать временные WAV; пусто — системный temp
	AudioTempTTL    time.Duration `env:"AUDIO_TEMP_TTL"`    // Старше этого временные WAV удаляются при старте

	// Голосование
	VotesPath string `env:"VOTES_PATH"` // Файл с голосами за модели
	VotesLock bool   `env:"VOTES_LOCK"` // Блокировать файл на время read-modify-write

	// Чат через WebSocket. Пусто — интерактивный режим в терминале.
	ChatListen string `env:"CHAT_LISTEN"`

	// Галерея
	GalleryDir         string        `env:"GALLERY_DIR"`         // Папка с картинками и аудио
	GalleryAddr        string        `env:"GALLERY_ADDR"`        // Адрес HTTP-сервера галереи
	CaptionBackend     string        `env:"CAPTION_BACKEND"`     // lorem|openai|gemini|<id локальной модели>
	CaptionConcurrency int           `env:"CAPTION_CONCURRENCY"` // Сколько файлов подписывать одновременно
	CaptionInterval    time.Duration `env:"CAPTION_INTERVAL"`    // Минимальный интервал между файлами в "Caption All"

	OpenAI OpenAIConfig
	Gemini GeminiConfig

	// Каталог моделей (теги модальностей с Hugging Face)
	CatalogPath string `env:"CATALOG_PATH"`
	HFEndpoint  string `env:"HF_ENDPOINT"`
}

// OpenAIConfig параметры облачного OpenAI для подписей галереи.
type OpenAIConfig struct {
	APIKey       string `env:"OPENAI_API_KEY"`
	CaptionModel string `env:"OPENAI_CAPTION_MODEL"`
}

// GeminiConfig параметры Gemini для подписей галереи.
// Если APIKey пуст, используется ADC (GOOGLE_APPLICATION_CREDENTIALS).
type GeminiConfig struct {
	APIKey   string `env:"GENAI_TOKEN"`
	Model    string `env:"GEMINI_MODEL"`
	Endpoint string `env:"GEMINI_ENDPOINT"`
	Enabled  bool   `env:"GEMINI_ENABLED"`
}

// Defaults возвращает конфигурацию с предустановленными значениями по умолчанию.
// Эти значения перекрываются .env, переменными окружения и флагами CLI.
func Defaults() *Config {
	return &Config{
		DebugMode:          false,
		LLMEndpoint:        "http://localhost:8087/v1",
		LLMAPIKey:          "llama.cpp",
		ChatTemperature:    0.2,
		ProbeAttempts:      10,
		ProbeDelay:         time.Second,
		ProbeTimeout:       5 * time.Second,
		ThumbnailSize:      250,
		AudioSampleRate:    16000,
		AudioTempTTL:       time.Hour,
		VotesPath:          "votes.json",
		VotesLock:          false, // last writer wins, как и раньше
		GalleryDir:         ".",
		GalleryAddr:        "127.0.0.1:9165",
		CaptionBackend:     "lorem",
		CaptionConcurrency: 1,
		CaptionInterval:    500 * time.Millisecond,
		OpenAI: OpenAIConfig{
			CaptionModel: "gpt-3.5-turbo",
		},
		Gemini: GeminiConfig{
			Model:    "gemini-1.5-flash",
			Endpoint: "https://generativelanguage.googleapis.com",
		},
		CatalogPath: "models.csv",
		HFEndpoint:  "https://huggingface.co",
	}
}

// NewConfig загружает конфигурацию приложения из .env, окружения и флагов командной строки.
func NewConfig() *Config {
	cfg, err := Load(flag.CommandLine, os.Args[1:])
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load собирает конфигурацию: дефолты, затем .env/окружение, затем флаги из args.
func Load(fs *flag.FlagSet, args []string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	fs.BoolVar(&cfg.DebugMode, "debug-mode", cfg.DebugMode, "включить режим дебага")
	fs.StringVar(&cfg.LLMEndpoint, "llm-endpoint", cfg.LLMEndpoint, "базовый URL OpenAI-совместимого сервера (например http://localhost:8087/v1)")
	fs.StringVar(&cfg.LLMAPIKey, "llm-api-key", cfg.LLMAPIKey, "API ключ локального сервера")
	fs.Float64Var(&cfg.ChatTemperature, "chat-temperature", cfg.ChatTemperature, "температура диалоговых запросов")
	fs.StringVar(&cfg.DefaultModel, "chat-model", cfg.DefaultModel, "модель при старте (пусто — первая из списка)")
	fs.IntVar(&cfg.ProbeAttempts, "probe-attempts", cfg.ProbeAttempts, "количество попыток опроса /props")
	fs.DurationVar(&cfg.ProbeDelay, "probe-delay", cfg.ProbeDelay, "пауза между попытками опроса /props")
	fs.DurationVar(&cfg.ProbeTimeout, "probe-timeout", cfg.ProbeTimeout, "таймаут одной попытки опроса /props")
	fs.IntVar(&cfg.ThumbnailSize, "thumbnail-size", cfg.ThumbnailSize, "размер стороны миниатюры, отправляемой модели")
	fs.IntVar(&cfg.AudioSampleRate, "audio-sample-rate", cfg.AudioSampleRate, "частота дискретизации, к которой приводится аудио")
	fs.StringVar(&cfg.AudioTempDir, "audio-temp-dir", cfg.AudioTempDir, "папка для временных WAV файлов")
	fs.DurationVar(&cfg.AudioTempTTL, "audio-temp-ttl", cfg.AudioTempTTL, "возраст, после которого забытые временные WAV удаляются")
	fs.StringVar(&cfg.VotesPath, "votes-path", cfg.VotesPath, "путь к файлу голосов")
	fs.BoolVar(&cfg.VotesLock, "votes-lock", cfg.VotesLock, "брать файловую блокировку при записи голосов")
	fs.StringVar(&cfg.ChatListen, "chat-listen", cfg.ChatListen, "адрес WebSocket сервера чата; пусто — чат в терминале")
	fs.StringVar(&cfg.GalleryDir, "gallery-dir", cfg.GalleryDir, "папка галереи")
	fs.StringVar(&cfg.GalleryAddr, "gallery-addr", cfg.GalleryAddr, "адрес HTTP сервера галереи")
	fs.StringVar(&cfg.CaptionBackend, "caption-backend", cfg.CaptionBackend, "бэкенд подписей: lorem|openai|gemini|<id модели>")
	fs.IntVar(&cfg.CaptionConcurrency, "caption-concurrency", cfg.CaptionConcurrency, "сколько файлов подписывать одновременно")
	fs.DurationVar(&cfg.CaptionInterval, "caption-interval", cfg.CaptionInterval, "минимальный интервал между файлами при массовой подписи")
	fs.StringVar(&cfg.OpenAI.APIKey, "openai-api-key", cfg.OpenAI.APIKey, "ключ OpenAI (также OPENAI_API_KEY)")
	fs.StringVar(&cfg.OpenAI.CaptionModel, "openai-caption-model", cfg.OpenAI.CaptionModel, "модель OpenAI для подписей")
	fs.StringVar(&cfg.Gemini.APIKey, "genai-token", cfg.Gemini.APIKey, "ключ Gemini (также GENAI_TOKEN)")
	fs.StringVar(&cfg.Gemini.Model, "gemini-model", cfg.Gemini.Model, "модель Gemini для подписей")
	fs.StringVar(&cfg.Gemini.Endpoint, "gemini-endpoint", cfg.Gemini.Endpoint, "базовый URL Generative Language API")
	fs.BoolVar(&cfg.Gemini.Enabled, "gemini-enabled", cfg.Gemini.Enabled, "разрешить Gemini без ключа (через ADC)")
	fs.StringVar(&cfg.CatalogPath, "catalog-path", cfg.CatalogPath, "CSV с тегами моделей")
	fs.StringVar(&cfg.HFEndpoint, "hf-endpoint", cfg.HFEndpoint, "базовый URL Hugging Face Hub")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.Gemini.APIKey != "" {
		cfg.Gemini.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет значения, с которыми приложение не сможет работать.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.LLMEndpoint) == "" {
		errs = append(errs, errors.New("llm endpoint is empty"))
	}
	if c.ProbeAttempts < 1 {
		errs = append(errs, fmt.Errorf("probe attempts must be >= 1, got %d", c.ProbeAttempts))
	}
	if c.ProbeDelay < 0 {
		errs = append(errs, fmt.Errorf("probe delay must be >= 0, got %s", c.ProbeDelay))
	}
	if c.ThumbnailSize <= 0 {
		errs = append(errs, fmt.Errorf("thumbnail size must be > 0, got %d", c.ThumbnailSize))
	}
	if c.AudioSampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio sample rate must be > 0, got %d", c.AudioSampleRate))
	}
	if c.ChatTemperature < 0 || c.ChatTemperature > 2 {
		errs = append(errs, fmt.Errorf("chat temperature out of range [0,2]: %v", c.ChatTemperature))
	}
	if c.CaptionConcurrency < 1 {
		errs = append(errs, fmt.Errorf("caption concurrency must be >= 1, got %d", c.CaptionConcurrency))
	}
	if strings.TrimSpace(c.VotesPath) == "" {
		errs = append(errs, errors.New("votes path is empty"))
	}
	return errors.Join(errs...)
}

// PropsRoot возвращает корень сервера для /props: базовый URL без завершающего /v1.
func (c *Config) PropsRoot() string {
	root := strings.TrimRight(strings.TrimSpace(c.LLMEndpoint), "/")
	return strings.TrimSuffix(root, "/v1")
}
