package ai

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"

	"FindAImage/internal/service/media"
)

// OpenAIAudioUnsupported — подпись для аудио при выборе OpenAI.
const OpenAIAudioUnsupported = "OpenAI audio analysis is not supported by this gallery interface."

// ErrNoAPIKey — ключ провайдера не задан.
var ErrNoAPIKey = errors.New("api key is not set")

// VisionClient загружает картинку в OpenAI Files и просит модель описать её по id файла
type VisionClient struct {
	client openai.Client
	model  string
	logger *zap.SugaredLogger
}

func NewVisionClient(apiKey, model string, logger *zap.SugaredLogger, opts ...option.RequestOption) (*VisionClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrNoAPIKey)
	}
	if model == "" {
		model = string(openai.ChatModelGPT3_5Turbo)
	}
	base := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	return &VisionClient{
		client: openai.NewClient(append(base, opts...)...),
		model:  model,
		logger: logger,
	}, nil
}

func (c *VisionClient) Describe(ctx context.Context, req DescribeRequest) (string, error) {
	if req.Kind == media.KindAudio {
		return OpenAIAudioUnsupported, nil
	}

	f, err := os.Open(req.Path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	file, err := c.client.Files.New(ctx, openai.FileNewParams{
		File:    f,
		Purpose: openai.FilePurposeVision,
	})
	if err != nil {
		return "", fmt.Errorf("openai upload: %w", err)
	}
	c.logger.Debugw("Файл загружен в OpenAI", "path", req.Path, "file_id", file.ID)

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(fmt.Sprintf("%s Re. image with file ID: %s", req.Prompt, file.ID)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errEmptyChoices
	}
	return resp.Choices[0].Message.Content, nil
}
