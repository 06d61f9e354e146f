package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/vorbis"
	"github.com/faiface/beep/wav"
)

const (
	// DefaultSampleRate — частота, которую ждут аудио-бэкенды (Ultravox и подобные).
	DefaultSampleRate = 16000
	// TempPattern — шаблон имени временного нормализованного файла.
	TempPattern = "audio-*.wav"

	normalizedFormat = "wav"
	resampleQuality  = 4
)

// ErrUnsupportedCodec — для формата файла нет декодера.
var ErrUnsupportedCodec = errors.New("unsupported audio codec")

// Audio — нормализованное аудио, готовое к отправке модели.
type Audio struct {
	Data   string // base64
	Format string // контейнер нормализованного файла, а не исходное расширение
}

// AudioEncoder приводит аудио к моно 16 бит с фиксированной частотой через временный WAV.
type AudioEncoder struct {
	sampleRate int
	tempDir    string
}

// NewAudioEncoder создаёт кодировщик. Пустой tempDir — системная временная папка.
func NewAudioEncoder(sampleRate int, tempDir string) *AudioEncoder {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &AudioEncoder{sampleRate: sampleRate, tempDir: tempDir}
}

// SampleRate возвращает целевую частоту.
func (e *AudioEncoder) SampleRate() int { return e.sampleRate }

// Encode декодирует файл, ресемплирует его, пишет во временный WAV, читает обратно и кодирует в base64.
// Временный файл удаляется на любом пути выхода.
func (e *AudioEncoder) Encode(path string) (Audio, error) {
	src, format, err := decodeAudio(path)
	if err != nil {
		return Audio{}, err
	}
	defer src.Close()

	tmp, err := os.CreateTemp(e.tempDir, TempPattern)
	if err != nil {
		return Audio{}, fmt.Errorf("create temp audio: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	target := beep.Format{SampleRate: beep.SampleRate(e.sampleRate), NumChannels: 1, Precision: 2}
	resampled := beep.Resample(resampleQuality, format.SampleRate, target.SampleRate, src)
	if err := wav.Encode(tmp, resampled, target); err != nil {
		_ = tmp.Close()
		return Audio{}, fmt.Errorf("encode wav: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Audio{}, fmt.Errorf("close temp audio: %w", err)
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return Audio{}, fmt.Errorf("read temp audio: %w", err)
	}
	return Audio{Data: base64.StdEncoding.EncodeToString(data), Format: normalizedFormat}, nil
}

func decodeAudio(path string) (beep.StreamSeekCloser, beep.Format, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch ext {
	case "wav", "mp3", "ogg":
	default:
		return nil, beep.Format{}, fmt.Errorf("%w: %q", ErrUnsupportedCodec, ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}

	var (
		s      beep.StreamSeekCloser
		format beep.Format
	)
	switch ext {
	case "wav":
		s, format, err = wav.Decode(f)
	case "mp3":
		s, format, err = mp3.Decode(f)
	case "ogg":
		s, format, err = vorbis.Decode(f)
	}
	if err != nil {
		_ = f.Close()
		return nil, beep.Format{}, fmt.Errorf("decode %s: %w", ext, err)
	}
	return s, format, nil
}

// RawAudio отдаёт файл как есть, формат — расширение без точки.
// Для контейнеров без декодера (m4a), которые сервер может принять сам.
func RawAudio(path string) (Audio, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Audio{}, err
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	return Audio{Data: base64.StdEncoding.EncodeToString(data), Format: ext}, nil
}
