package ai

import (
	"context"

	"FindAImage/internal/service/media"
)

// DescribeRequest — запрос подписи к одному медиафайлу.
type DescribeRequest struct {
	Model  string
	Path   string
	Kind   media.Kind
	Prompt string
}

// Describer интерфейс бэкенда подписей. Все реализации должны быть взаимозаменяемыми.
type Describer interface {
	Describe(ctx context.Context, req DescribeRequest) (string, error)
}
