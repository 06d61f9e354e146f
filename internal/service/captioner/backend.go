package captioner

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownBackend — имя не совпало ни с одним бэкендом подписей.
var ErrUnknownBackend = errors.New("unknown caption backend")

// Kind — вид бэкенда подписей.
type Kind int

const (
	Placeholder Kind = iota
	LocalModel
	HostedOpenAI
	HostedGemini
)

func (k Kind) String() string {
	switch k {
	case LocalModel:
		return "local"
	case HostedOpenAI:
		return "openai"
	case HostedGemini:
		return "gemini"
	default:
		return "lorem"
	}
}

// Backend — выбранный бэкенд. Model заполнен только для LocalModel.
type Backend struct {
	Kind  Kind
	Model string
}

// Name — имя бэкенда так, как его выбирают на странице.
func (b Backend) Name() string {
	if b.Kind == LocalModel {
		return b.Model
	}
	return b.Kind.String()
}

// ParseBackend сопоставляет имя (без учёта регистра) с бэкендом: lorem, openai, gemini или id локальной модели.
func ParseBackend(name string, localModels []string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "lorem":
		return Backend{Kind: Placeholder}, nil
	case "openai":
		return Backend{Kind: HostedOpenAI}, nil
	case "gemini":
		return Backend{Kind: HostedGemini}, nil
	}
	for _, m := range localModels {
		if strings.EqualFold(m, strings.TrimSpace(name)) {
			return Backend{Kind: LocalModel, Model: m}, nil
		}
	}
	return Backend{}, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
}

var localMarkers = []string{"llava", "vision", "omni"}

// LocalModels оставляет модели сервера, пригодные для подписей: в id есть llava, vision или omni.
func LocalModels(ids []string) []string {
	var out []string
	for _, id := range ids {
		lower := strings.ToLower(id)
		for _, m := range localMarkers {
			if strings.Contains(lower, m) {
				out = append(out, id)
				break
			}
		}
	}
	return out
}
