package ai

import (
	"context"
	"errors"
	"fmt"

	"FindAImage/internal/service/chat"
	"FindAImage/internal/service/media"
)

// LocalDescriber подписывает медиа локальной мультимодальной моделью одним запросом без потока.
type LocalDescriber struct {
	chat      *ChatClient
	audio     chat.AudioEncoder
	thumbnail int
}

func NewLocalDescriber(c *ChatClient, audio chat.AudioEncoder, thumbnail int) *LocalDescriber {
	return &LocalDescriber{chat: c, audio: audio, thumbnail: thumbnail}
}

// Describe отправляет [медиа, промпт] и возвращает текст ответа.
func (d *LocalDescriber) Describe(ctx context.Context, req DescribeRequest) (string, error) {
	block, err := d.mediaBlock(req)
	if err != nil {
		return "", err
	}
	msgs := []chat.Message{{
		Role:   chat.RoleUser,
		Blocks: []chat.Block{block, chat.TextBlock(req.Prompt)},
	}}
	return d.chat.Complete(ctx, req.Model, msgs, StopSequences)
}

func (d *LocalDescriber) mediaBlock(req DescribeRequest) (chat.Block, error) {
	switch req.Kind {
	case media.KindImage:
		img, err := media.DecodeImageFile(req.Path)
		if err != nil {
			return chat.Block{}, err
		}
		url, err := media.EncodeImage(img, d.thumbnail)
		if err != nil {
			return chat.Block{}, err
		}
		return chat.ImageBlock(url), nil
	case media.KindAudio:
		a, err := d.audio.Encode(req.Path)
		if errors.Is(err, media.ErrUnsupportedCodec) {
			// без декодера отправляем исходные байты, формат по расширению
			a, err = media.RawAudio(req.Path)
		}
		if err != nil {
			return chat.Block{}, err
		}
		return chat.AudioBlock(a.Data, a.Format), nil
	default:
		return chat.Block{}, fmt.Errorf("unsupported media: %s", req.Path)
	}
}
