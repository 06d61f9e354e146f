package media

import (
	"path/filepath"
	"slices"
	"strings"
)

// Kind — тип медиафайла по расширению.
type Kind int

const (
	KindUnknown Kind = iota
	KindImage
	KindAudio
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

var (
	imageExts = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".webp"}
	audioExts = []string{".mp3", ".wav", ".ogg", ".m4a"}
)

// KindOf определяет тип файла по расширению без учёта регистра.
func KindOf(name string) Kind {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case slices.Contains(imageExts, ext):
		return KindImage
	case slices.Contains(audioExts, ext):
		return KindAudio
	default:
		return KindUnknown
	}
}

// MimeType возвращает MIME тип по расширению; пусто, если тип неизвестен.
func MimeType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	case ".webp":
		return "image/webp"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".ogg":
		return "audio/ogg"
	case ".m4a":
		return "audio/mp4"
	default:
		return ""
	}
}
