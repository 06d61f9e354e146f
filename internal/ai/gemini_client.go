package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/oauth2/google"

	"FindAImage/internal/service/media"
)

const (
	DefaultGeminiEndpoint = "https://generativelanguage.googleapis.com"
	DefaultGeminiModel    = "gemini-1.5-flash"

	geminiScope = "https://www.googleapis.com/auth/generative-language"
)

// GeminiHTTPClient возвращает HTTP‑клиент для Gemini: с ключом — обычный,
// без ключа — OAuth2 через ADC (GOOGLE_APPLICATION_CREDENTIALS или metadata).
func GeminiHTTPClient(ctx context.Context, apiKey string) (*http.Client, error) {
	if apiKey != "" {
		return &http.Client{Timeout: 2 * time.Minute}, nil
	}
	c, err := google.DefaultClient(ctx, geminiScope, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		return nil, fmt.Errorf("gemini: ADC credentials not found, set GENAI_TOKEN or GOOGLE_APPLICATION_CREDENTIALS: %w", err)
	}
	return c, nil
}

// GeminiClient загружает файл (картинку или аудио) в Gemini File API и просит generateContent описать его.
type GeminiClient struct {
	http     *http.Client
	endpoint string
	model    string
	apiKey   string
	logger   *zap.SugaredLogger
}

func NewGeminiClient(httpClient *http.Client, endpoint, model, apiKey string, logger *zap.SugaredLogger) *GeminiClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if endpoint == "" {
		endpoint = DefaultGeminiEndpoint
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiClient{
		http:     httpClient,
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		apiKey:   apiKey,
		logger:   logger,
	}
}

type geminiPart struct {
	Text     string          `json:"text,omitempty"`
	FileData *geminiFileData `json:"file_data,omitempty"`
}

type geminiFileData struct {
	MimeType string `json:"mime_type"`
	FileURI  string `json:"file_uri"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

func (c *GeminiClient) Describe(ctx context.Context, req DescribeRequest) (string, error) {
	uri, mimeType, err := c.upload(ctx, req.Path)
	if err != nil {
		return "", err
	}

	body := geminiRequest{Contents: []geminiContent{{Parts: []geminiPart{
		{FileData: &geminiFileData{MimeType: mimeType, FileURI: uri}},
		{Text: "\n\n"},
		{Text: req.Prompt},
	}}}}
	payload, err := json.Marshal(&body)
	if err != nil {
		return "", err
	}

	u := c.endpoint + "/v1beta/models/" + url.PathEscape(c.model) + ":generateContent"
	started := time.Now()
	resp, err := c.post(ctx, u, "application/json", bytes.NewReader(payload), nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	c.logger.Infow("Gemini request completed", "model", c.model, "took", time.Since(started).String())

	var sb strings.Builder
	for _, p := range gjson.GetBytes(resp, "candidates.0.content.parts.#.text").Array() {
		sb.WriteString(p.String())
	}
	if sb.Len() == 0 {
		if reason := gjson.GetBytes(resp, "promptFeedback.blockReason").String(); reason != "" {
			return "", fmt.Errorf("gemini: response blocked: %s", reason)
		}
		return "", errors.New("gemini: empty response")
	}
	return sb.String(), nil
}

// upload загружает файл простым (raw) запросом и возвращает его URI и MIME тип.
func (c *GeminiClient) upload(ctx context.Context, path string) (string, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	mimeType := media.MimeType(path)
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	headers := map[string]string{
		"X-Goog-Upload-Protocol":  "raw",
		"X-Goog-Upload-File-Name": filepath.Base(path),
	}
	resp, err := c.post(ctx, c.endpoint+"/upload/v1beta/files", mimeType, bytes.NewReader(data), headers)
	if err != nil {
		return "", "", fmt.Errorf("gemini upload: %w", err)
	}
	uri := gjson.GetBytes(resp, "file.uri").String()
	if uri == "" {
		return "", "", errors.New("gemini upload: no file uri in response")
	}
	if mt := gjson.GetBytes(resp, "file.mimeType").String(); mt != "" {
		mimeType = mt
	}
	return uri, mimeType, nil
}

func (c *GeminiClient) post(ctx context.Context, u, contentType string, body io.Reader, headers map[string]string) ([]byte, error) {
	if c.apiKey != "" {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + "key=" + url.QueryEscape(c.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if len(b) == 0 {
			b = []byte(resp.Status)
		}
		return nil, fmt.Errorf("status=%d, body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return io.ReadAll(io.LimitReader(resp.Body, 5<<20))
}
