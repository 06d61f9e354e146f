package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"FindAImage/internal/service/chat"
	"FindAImage/internal/service/media"
)

func nop() *zap.SugaredLogger { return zap.NewNop().Sugar() }

func completionJSON(content string) string {
	return fmt.Sprintf(`{"id":"c1","object":"chat.completion","created":0,"model":"m",`+
		`"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":%q}}]}`, content)
}

func writeSSE(w http.ResponseWriter, fragments ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, f := range fragments {
		fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":0,\"model\":\"m\","+
			"\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", f)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func writePNG(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for y := range 30 {
		for x := range 40 {
			img.Set(x, y, color.RGBA{B: 255, A: 255})
		}
	}
	path := filepath.Join(dir, "pic.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestChatClientStream(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		body, _ = io.ReadAll(r.Body)
		writeSSE(w, "Par", "is")
	}))
	defer srv.Close()

	c := NewChatClient(srv.URL+"/v1", "llama.cpp", nop())
	s, err := c.Stream(context.Background(), chat.Request{
		Model:       "llava",
		Temperature: 0.2,
		Messages: []chat.Message{
			{Role: chat.RoleSystem, Text: "sys"},
			{Role: chat.RoleUser, Blocks: []chat.Block{
				chat.TextBlock("hi"),
				chat.ImageBlock("data:image/png;base64,AAAA"),
				chat.AudioBlock("UklGRg==", "wav"),
			}},
		},
	})
	require.NoError(t, err)
	defer s.Close()

	var frags []string
	for s.Next() {
		frags = append(frags, s.Fragment())
	}
	require.NoError(t, s.Err())
	assert.Equal(t, []string{"Par", "is"}, frags)

	req := gjson.ParseBytes(body)
	assert.Equal(t, "llava", req.Get("model").String())
	assert.True(t, req.Get("stream").Bool())
	assert.InDelta(t, 0.2, req.Get("temperature").Float(), 1e-9)
	assert.Equal(t, "system", req.Get("messages.0.role").String())
	assert.Equal(t, "text", req.Get("messages.1.content.0.type").String())
	assert.Equal(t, "image_url", req.Get("messages.1.content.1.type").String())
	assert.Equal(t, "data:image/png;base64,AAAA", req.Get("messages.1.content.1.image_url.url").String())
	assert.Equal(t, "input_audio", req.Get("messages.1.content.2.type").String())
	assert.Equal(t, "wav", req.Get("messages.1.content.2.input_audio.format").String())
}

func TestChatClientStreamServerError(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Error(w, `{"error":{"message":"model not loaded"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewChatClient(srv.URL+"/v1", "k", nop())
	s, err := c.Stream(context.Background(), chat.Request{Model: "m", Messages: []chat.Message{{Role: chat.RoleUser, Text: "x"}}})
	require.NoError(t, err)
	assert.False(t, s.Next())
	assert.Error(t, s.Err())
	assert.Equal(t, 1, hits, "без повторов")
}

func TestChatClientListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[`+
			`{"id":"llava","object":"model","created":0,"owned_by":"me","status":{"args":["--model","x.gguf","--mmproj","p.gguf"]}},`+
			`{"id":"qwen","object":"model","created":0,"owned_by":"me","status":{"args":"--model q.gguf"}},`+
			`{"id":"bare","object":"model","created":0,"owned_by":"me"}]}`)
	}))
	defer srv.Close()

	models, err := NewChatClient(srv.URL+"/v1", "k", nop()).ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 3)
	assert.Equal(t, "llava", models[0].ID)
	assert.Contains(t, models[0].Args, "--mmproj")
	assert.Equal(t, "--model q.gguf", models[1].Args)
	assert.Empty(t, models[2].Args)
}

func TestLocalDescriberImage(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionJSON("A blue rectangle."))
	}))
	defer srv.Close()

	d := NewLocalDescriber(NewChatClient(srv.URL+"/v1", "k", nop()), media.NewAudioEncoder(16000, t.TempDir()), 250)
	out, err := d.Describe(context.Background(), DescribeRequest{
		Model:  "llava",
		Path:   writePNG(t, t.TempDir()),
		Kind:   media.KindImage,
		Prompt: "Describe this image in 10-50 words.",
	})
	require.NoError(t, err)
	assert.Equal(t, "A blue rectangle.", out)

	req := gjson.ParseBytes(body)
	assert.False(t, req.Get("stream").Bool())
	assert.Equal(t, "image_url", req.Get("messages.0.content.0.type").String())
	assert.True(t, strings.HasPrefix(req.Get("messages.0.content.0.image_url.url").String(), "data:image/png;base64,"))
	assert.Equal(t, "Describe this image in 10-50 words.", req.Get("messages.0.content.1.text").String())
	assert.Equal(t, `["<|im_end|>","###"]`, req.Get("stop").Raw)
}

func TestLocalDescriberBadAudio(t *testing.T) {
	d := NewLocalDescriber(NewChatClient("http://127.0.0.1:1/v1", "k", nop()), media.NewAudioEncoder(16000, t.TempDir()), 250)
	path := filepath.Join(t.TempDir(), "a.ogg")
	require.NoError(t, os.WriteFile(path, []byte("OggS"), 0o644))

	_, err := d.Describe(context.Background(), DescribeRequest{Model: "omni", Path: path, Kind: media.KindAudio})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode ogg")
}

func TestLocalDescriberSendsUndecodableAudioAsIs(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionJSON("Someone whistles."))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "memo.m4a")
	require.NoError(t, os.WriteFile(path, []byte("ftypM4A "), 0o644))

	d := NewLocalDescriber(NewChatClient(srv.URL+"/v1", "k", nop()), media.NewAudioEncoder(16000, t.TempDir()), 250)
	out, err := d.Describe(context.Background(), DescribeRequest{
		Model:  "qwen-omni",
		Path:   path,
		Kind:   media.KindAudio,
		Prompt: "Describe this audio in 10-50 words.",
	})
	require.NoError(t, err)
	assert.Equal(t, "Someone whistles.", out)

	req := gjson.ParseBytes(body)
	assert.Equal(t, "input_audio", req.Get("messages.0.content.0.type").String())
	assert.Equal(t, "m4a", req.Get("messages.0.content.0.input_audio.format").String())
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("ftypM4A ")), req.Get("messages.0.content.0.input_audio.data").String())
	assert.Equal(t, "Describe this audio in 10-50 words.", req.Get("messages.0.content.1.text").String())
}

func TestVisionClientUploadsThenAsks(t *testing.T) {
	var uploaded bool
	var chatBody []byte
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/files", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "vision", r.FormValue("purpose"))
		uploaded = true
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"file-123","object":"file","bytes":3,"created_at":0,"filename":"pic.png","purpose":"vision","status":"processed"}`)
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		chatBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionJSON("A picture."))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := NewVisionClient("sk-test", "", nop(), option.WithBaseURL(srv.URL+"/v1"))
	require.NoError(t, err)
	out, err := c.Describe(context.Background(), DescribeRequest{
		Path:   writePNG(t, t.TempDir()),
		Kind:   media.KindImage,
		Prompt: "Describe this image in 10-50 words.",
	})
	require.NoError(t, err)
	assert.Equal(t, "A picture.", out)
	assert.True(t, uploaded)

	req := gjson.ParseBytes(chatBody)
	assert.Equal(t, "gpt-3.5-turbo", req.Get("model").String())
	assert.Equal(t, "Describe this image in 10-50 words. Re. image with file ID: file-123", req.Get("messages.0.content").String())
}

func TestVisionClientAudioUnsupported(t *testing.T) {
	c, err := NewVisionClient("sk-test", "", nop(), option.WithBaseURL("http://127.0.0.1:1/v1"))
	require.NoError(t, err)
	out, err := c.Describe(context.Background(), DescribeRequest{Path: "song.mp3", Kind: media.KindAudio})
	require.NoError(t, err)
	assert.Equal(t, OpenAIAudioUnsupported, out)

	_, err = NewVisionClient("", "", nop())
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestGeminiClientDescribe(t *testing.T) {
	var genBody []byte
	mux := http.NewServeMux()
	mux.HandleFunc("/upload/v1beta/files", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		assert.Equal(t, "raw", r.Header.Get("X-Goog-Upload-Protocol"))
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
		fmt.Fprint(w, `{"file":{"name":"files/abc","uri":"https://files.example/abc","mimeType":"image/png"}}`)
	})
	mux.HandleFunc("/v1beta/models/gemini-1.5-flash:generateContent", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		genBody, _ = io.ReadAll(r.Body)
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"A blue "},{"text":"card."}]}}]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	g := NewGeminiClient(srv.Client(), srv.URL, "", "secret", nop())
	out, err := g.Describe(context.Background(), DescribeRequest{
		Path:   writePNG(t, t.TempDir()),
		Kind:   media.KindImage,
		Prompt: "Describe this image in 10-50 words.",
	})
	require.NoError(t, err)
	assert.Equal(t, "A blue card.", out)

	req := gjson.ParseBytes(genBody)
	assert.Equal(t, "https://files.example/abc", req.Get("contents.0.parts.0.file_data.file_uri").String())
	assert.Equal(t, "\n\n", req.Get("contents.0.parts.1.text").String())
	assert.Equal(t, "Describe this image in 10-50 words.", req.Get("contents.0.parts.2.text").String())
}

func TestGeminiClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/upload/") {
			fmt.Fprint(w, `{"file":{"uri":"u","mimeType":"image/png"}}`)
			return
		}
		fmt.Fprint(w, `{"promptFeedback":{"blockReason":"SAFETY"}}`)
	}))
	defer srv.Close()

	g := NewGeminiClient(srv.Client(), srv.URL, "m", "k", nop())
	_, err := g.Describe(context.Background(), DescribeRequest{Path: writePNG(t, t.TempDir()), Kind: media.KindImage})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SAFETY")

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer bad.Close()
	_, err = NewGeminiClient(bad.Client(), bad.URL, "m", "k", nop()).
		Describe(context.Background(), DescribeRequest{Path: writePNG(t, t.TempDir()), Kind: media.KindImage})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=429")
}

func TestStubClient(t *testing.T) {
	out, err := NewStubClient().Describe(context.Background(), DescribeRequest{Path: "x.png"})
	require.NoError(t, err)
	assert.Equal(t, LoremCaption, out)
}
