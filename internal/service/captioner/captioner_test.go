package captioner

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"FindAImage/internal/ai"
	"FindAImage/internal/service/capability"
	"FindAImage/internal/service/media"
)

type fakeDescriber struct {
	mu       sync.Mutex
	requests []ai.DescribeRequest
	fail     map[string]error
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (d *fakeDescriber) Describe(_ context.Context, req ai.DescribeRequest) (string, error) {
	n := d.inFlight.Add(1)
	defer d.inFlight.Add(-1)
	for {
		p := d.peak.Load()
		if n <= p || d.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(d.delay)

	d.mu.Lock()
	d.requests = append(d.requests, req)
	d.mu.Unlock()
	if err := d.fail[filepath.Base(req.Path)]; err != nil {
		return "", err
	}
	return "caption of " + filepath.Base(req.Path), nil
}

type tags map[string][]string

func (t tags) Lookup(id string) ([]string, bool) {
	v, ok := t[id]
	return v, ok
}

func nop() *zap.SugaredLogger { return zap.NewNop().Sugar() }

func TestParseBackend(t *testing.T) {
	local := []string{"llava-v1.6-7B", "Qwen2.5-Omni"}

	cases := map[string]Backend{
		"lorem":         {Kind: Placeholder},
		"OpenAI":        {Kind: HostedOpenAI},
		"GEMINI":        {Kind: HostedGemini},
		"llava-v1.6-7b": {Kind: LocalModel, Model: "llava-v1.6-7B"},
		"qwen2.5-omni":  {Kind: LocalModel, Model: "Qwen2.5-Omni"},
	}
	for name, want := range cases {
		got, err := ParseBackend(name, local)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseBackend("mistral", local)
	assert.ErrorIs(t, err, ErrUnknownBackend)
	assert.Equal(t, "llava-v1.6-7B", Backend{Kind: LocalModel, Model: "llava-v1.6-7B"}.Name())
	assert.Equal(t, "gemini", Backend{Kind: HostedGemini}.Name())
}

func TestLocalModels(t *testing.T) {
	got := LocalModels([]string{"LLaVA-1.5", "mistral-7b", "qwen2-vision", "Qwen2.5-Omni", "phi"})
	assert.Equal(t, []string{"LLaVA-1.5", "qwen2-vision", "Qwen2.5-Omni"}, got)
}

func TestCaptionPlaceholderNeedsNoBackend(t *testing.T) {
	c := New(nil, nil, nop())
	out, err := c.Caption(context.Background(), "/nowhere/cat.png", Backend{Kind: Placeholder})
	require.NoError(t, err)
	assert.Equal(t, ai.LoremCaption, out)
}

func TestCaptionPlaceholderGoesThroughTable(t *testing.T) {
	stub := &fakeDescriber{}
	c := New(map[Kind]ai.Describer{Placeholder: stub}, nil, nop())
	out, err := c.Caption(context.Background(), "/g/cat.png", Backend{Kind: Placeholder})
	require.NoError(t, err)
	assert.Equal(t, "caption of cat.png", out)
	require.Len(t, stub.requests, 1)
	assert.Equal(t, ImagePrompt, stub.requests[0].Prompt)

	_, err = c.Caption(context.Background(), "/g/notes.txt", Backend{Kind: Placeholder})
	assert.Error(t, err)
}

func TestCaptionDispatchesByKind(t *testing.T) {
	local, gemini := &fakeDescriber{}, &fakeDescriber{}
	c := New(map[Kind]ai.Describer{LocalModel: local, HostedGemini: gemini}, nil, nop())

	out, err := c.Caption(context.Background(), "/g/song.MP3", Backend{Kind: LocalModel, Model: "omni"})
	require.NoError(t, err)
	assert.Equal(t, "caption of song.MP3", out)
	require.Len(t, local.requests, 1)
	assert.Equal(t, ai.DescribeRequest{Model: "omni", Path: "/g/song.MP3", Kind: media.KindAudio, Prompt: AudioPrompt}, local.requests[0])

	_, err = c.Caption(context.Background(), "/g/cat.jpg", Backend{Kind: HostedGemini})
	require.NoError(t, err)
	require.Len(t, gemini.requests, 1)
	assert.Equal(t, ImagePrompt, gemini.requests[0].Prompt)

	_, err = c.Caption(context.Background(), "/g/cat.jpg", Backend{Kind: HostedOpenAI})
	assert.ErrorIs(t, err, ErrBackendUnavailable)

	_, err = c.Caption(context.Background(), "/g/notes.txt", Backend{Kind: LocalModel, Model: "m"})
	assert.Error(t, err)
}

func TestCaptionAllIsolatesFailures(t *testing.T) {
	boom := errors.New("model crashed")
	d := &fakeDescriber{fail: map[string]error{"b.png": boom}}
	c := New(map[Kind]ai.Describer{LocalModel: d}, nil, nop(), WithInterval(0))

	res := c.CaptionAll(context.Background(), []string{"/g/a.png", "/g/b.png", "/g/c.wav"}, Backend{Kind: LocalModel, Model: "llava"})
	require.Len(t, res, 3)
	assert.Equal(t, Result{File: "a.png", Caption: "caption of a.png"}, res[0])
	assert.Equal(t, "b.png", res[1].File)
	assert.ErrorIs(t, res[1].Err, boom)
	assert.Contains(t, res[1].Error, "model crashed")
	assert.Equal(t, "caption of c.wav", res[2].Caption)
	assert.Len(t, d.requests, 3)
}

func TestCaptionAllBoundedConcurrency(t *testing.T) {
	d := &fakeDescriber{delay: 20 * time.Millisecond}
	c := New(map[Kind]ai.Describer{LocalModel: d}, nil, nop(), WithConcurrency(2), WithInterval(0))

	paths := []string{"/g/1.png", "/g/2.png", "/g/3.png", "/g/4.png", "/g/5.png", "/g/6.png"}
	res := c.CaptionAll(context.Background(), paths, Backend{Kind: LocalModel, Model: "llava"})
	require.Len(t, res, 6)
	for _, r := range res {
		assert.NoError(t, r.Err)
	}
	assert.LessOrEqual(t, d.peak.Load(), int32(2))
}

func TestCaptionAllPacing(t *testing.T) {
	d := &fakeDescriber{}
	c := New(map[Kind]ai.Describer{LocalModel: d}, nil, nop(), WithInterval(40*time.Millisecond))

	start := time.Now()
	c.CaptionAll(context.Background(), []string{"/g/1.png", "/g/2.png", "/g/3.png"}, Backend{Kind: LocalModel, Model: "m"})
	assert.GreaterOrEqual(t, time.Since(start), 75*time.Millisecond)
}

func TestCaptionAllCancelled(t *testing.T) {
	d := &fakeDescriber{}
	c := New(map[Kind]ai.Describer{LocalModel: d}, nil, nop(), WithInterval(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := c.CaptionAll(ctx, []string{"/g/1.png", "/g/2.png"}, Backend{Kind: LocalModel, Model: "m"})
	for _, r := range res {
		assert.Error(t, r.Err)
	}
	assert.Empty(t, d.requests)
}

func TestAudioAffordance(t *testing.T) {
	c := New(nil, tags{"ultravox": {"audio"}, "llava": {"image"}}, nop())
	assert.Equal(t, capability.Assessment{Audio: true, Basis: capability.BasisDeclared}, c.AudioAffordance("ultravox"))
	assert.Equal(t, capability.Assessment{Audio: false, Basis: capability.BasisDeclared}, c.AudioAffordance("llava"))
	assert.Equal(t, capability.Assessment{Audio: true, Basis: capability.BasisHeuristic}, c.AudioAffordance("Qwen-Omni"))

	bare := New(nil, nil, nop())
	assert.Equal(t, capability.Assessment{Audio: false, Basis: capability.BasisHeuristic}, bare.AudioAffordance("llava"))
}
