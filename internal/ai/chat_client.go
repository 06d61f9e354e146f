package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/ssestream"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"FindAImage/internal/service/capability"
	"FindAImage/internal/service/chat"
)

// StopSequences — стоп-последовательности для одиночных запросов к локальным моделям.
var StopSequences = []string{"<|im_end|>", "###"}

var errEmptyChoices = errors.New("completion has no choices")

// ChatClient работает с OpenAI-совместимым сервером (llama.cpp и подобными):
// потоковый диалог, одиночные запросы и список моделей.
type ChatClient struct {
	client openai.Client
	logger *zap.SugaredLogger
}

// NewChatClient создаёт клиента. Повторы SDK отключены: ошибки сразу попадают в диалог.
func NewChatClient(baseURL, apiKey string, logger *zap.SugaredLogger, opts ...option.RequestOption) *ChatClient {
	base := []option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	return &ChatClient{client: openai.NewClient(append(base, opts...)...), logger: logger}
}

// Stream отправляет историю и возвращает поток фрагментов ответа.
func (c *ChatClient) Stream(ctx context.Context, req chat.Request) (chat.Stream, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(req.Model),
		Messages:    toParams(req.Messages),
		Temperature: openai.Float(req.Temperature),
	}
	s := c.client.Chat.Completions.NewStreaming(ctx, params)
	if s == nil {
		return nil, errors.New("chat completions streaming not available")
	}
	return &chunkStream{s: s}, nil
}

// Complete выполняет одиночный запрос без потока и возвращает текст первого ответа.
func (c *ChatClient) Complete(ctx context.Context, model string, msgs []chat.Message, stop []string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: toParams(msgs),
	}
	if len(stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: stop}
	}
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errEmptyChoices
	}
	return resp.Choices[0].Message.Content, nil
}

// ListModels возвращает модели сервера вместе с аргументами запуска из status.args.
// args бывает строкой или массивом, массив склеивается через пробел.
func (c *ChatClient) ListModels(ctx context.Context) ([]capability.ModelInfo, error) {
	page, err := c.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	out := make([]capability.ModelInfo, 0, len(page.Data))
	for _, m := range page.Data {
		info := capability.ModelInfo{ID: m.ID}
		args := gjson.Get(m.RawJSON(), "status.args")
		if args.IsArray() {
			parts := make([]string, 0, len(args.Array()))
			for _, a := range args.Array() {
				parts = append(parts, a.String())
			}
			info.Args = strings.Join(parts, " ")
		} else if args.Exists() {
			info.Args = args.String()
		}
		out = append(out, info)
	}
	return out, nil
}

// ModelIDs — только идентификаторы моделей.
func (c *ChatClient) ModelIDs(ctx context.Context) ([]string, error) {
	models, err := c.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(models))
	for _, m := range models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// chunkStream достаёт текст из чанков SSE, пропуская чанки без choices.
type chunkStream struct {
	s    *ssestream.Stream[openai.ChatCompletionChunk]
	frag string
}

func (c *chunkStream) Next() bool {
	for c.s.Next() {
		chunk := c.s.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		c.frag = chunk.Choices[0].Delta.Content
		return true
	}
	return false
}

func (c *chunkStream) Fragment() string { return c.frag }

func (c *chunkStream) Err() error { return c.s.Err() }

func (c *chunkStream) Close() error { return c.s.Close() }

func toParams(msgs []chat.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case chat.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content()))
		case chat.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content()))
		default:
			if m.Blocks == nil {
				out = append(out, openai.UserMessage(m.Text))
				continue
			}
			out = append(out, openai.UserMessage(toParts(m.Blocks)))
		}
	}
	return out
}

func toParts(blocks []chat.Block) []openai.ChatCompletionContentPartUnionParam {
	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(blocks))
	for _, b := range blocks {
		switch b.Kind {
		case chat.BlockImage:
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: b.ImageURL}))
		case chat.BlockAudio:
			parts = append(parts, openai.InputAudioContentPart(openai.ChatCompletionContentPartInputAudioInputAudioParam{
				Data:   b.AudioData,
				Format: b.AudioFormat,
			}))
		default:
			parts = append(parts, openai.TextContentPart(b.Text))
		}
	}
	return parts
}
