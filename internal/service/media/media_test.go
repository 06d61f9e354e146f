package media

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func gradient(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

func decodeDataURL(t *testing.T, url string) image.Image {
	t.Helper()
	const prefix = "data:image/png;base64,"
	require.True(t, strings.HasPrefix(url, prefix), "ожидался PNG data URL")
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, prefix))
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	return img
}

func TestEncodeImageRoundTrip(t *testing.T) {
	for _, size := range [][2]int{{1024, 768}, {100, 40}, {250, 250}} {
		url, err := EncodeImage(gradient(size[0], size[1]), DefaultThumbnailSize)
		require.NoError(t, err)

		img := decodeDataURL(t, url)
		assert.Equal(t, 250, img.Bounds().Dx())
		assert.Equal(t, 250, img.Bounds().Dy())
	}
}

func TestEncodeImageKeepsContent(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 500, 500))
	red := color.RGBA{R: 255, A: 255}
	for y := range 500 {
		for x := range 500 {
			src.Set(x, y, red)
		}
	}

	url, err := EncodeImage(src, 250)
	require.NoError(t, err)
	r, g, b, a := decodeDataURL(t, url).At(125, 125).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Zero(t, g)
	assert.Zero(t, b)
	assert.Equal(t, uint32(0xffff), a)
}

func TestEncodeImageDeterministic(t *testing.T) {
	img := gradient(640, 480)
	a, err := EncodeImage(img, 250)
	require.NoError(t, err)
	b, err := EncodeImage(img, 250)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEncodeImageRejectsEmpty(t *testing.T) {
	_, err := EncodeImage(image.NewRGBA(image.Rect(0, 0, 0, 0)), 250)
	assert.Error(t, err)
	_, err = EncodeImage(nil, 250)
	assert.Error(t, err)
}

func TestDecodeImageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pic.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, gradient(30, 20)))
	require.NoError(t, f.Close())

	img, err := DecodeImageFile(path)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 30, 20), img.Bounds())

	_, err = DecodeImageFile(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}

// sine — конечный стерео стример синусоиды.
func sine(rate beep.SampleRate, d time.Duration) beep.Streamer {
	total := rate.N(d)
	pos := 0
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if pos >= total {
			return 0, false
		}
		n := 0
		for i := range samples {
			if pos >= total {
				break
			}
			v := 0.5 * math.Sin(2*math.Pi*440*float64(pos)/float64(rate))
			samples[i] = [2]float64{v, v}
			pos++
			n++
		}
		return n, true
	})
}

func writeWAV(t *testing.T, dir string, rate beep.SampleRate) string {
	t.Helper()
	path := filepath.Join(dir, "clip.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, wav.Encode(f, sine(rate, 500*time.Millisecond), beep.Format{SampleRate: rate, NumChannels: 2, Precision: 2}))
	require.NoError(t, f.Close())
	return path
}

func tempLeftovers(t *testing.T, dir string) []string {
	t.Helper()
	m, err := filepath.Glob(filepath.Join(dir, TempPattern))
	require.NoError(t, err)
	return m
}

func TestEncodeAudioResamples(t *testing.T) {
	srcDir, tmpDir := t.TempDir(), t.TempDir()
	path := writeWAV(t, srcDir, 44100)

	enc := NewAudioEncoder(16000, tmpDir)
	out, err := enc.Encode(path)
	require.NoError(t, err)
	assert.Equal(t, "wav", out.Format)

	raw, err := base64.StdEncoding.DecodeString(out.Data)
	require.NoError(t, err)
	s, format, err := wav.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, beep.SampleRate(16000), format.SampleRate)
	assert.Equal(t, 1, format.NumChannels)
	assert.InDelta(t, 8000, s.Len(), 50, "полсекунды на 16 кГц")

	assert.Empty(t, tempLeftovers(t, tmpDir), "временный файл должен быть удалён")
}

func TestEncodeAudioFormatIsNormalizedContainer(t *testing.T) {
	srcDir := t.TempDir()
	wavPath := writeWAV(t, srcDir, 16000)
	renamed := filepath.Join(srcDir, "clip.WAV")
	require.NoError(t, os.Rename(wavPath, renamed))

	out, err := NewAudioEncoder(16000, t.TempDir()).Encode(renamed)
	require.NoError(t, err)
	assert.Equal(t, "wav", out.Format)
}

func TestEncodeAudioUnsupportedCodec(t *testing.T) {
	srcDir, tmpDir := t.TempDir(), t.TempDir()
	path := filepath.Join(srcDir, "voice.m4a")
	require.NoError(t, os.WriteFile(path, []byte("not really aac"), 0o644))

	_, err := NewAudioEncoder(16000, tmpDir).Encode(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedCodec)
	assert.Empty(t, tempLeftovers(t, tmpDir))
}

func TestEncodeAudioCorruptFileCleansUp(t *testing.T) {
	srcDir, tmpDir := t.TempDir(), t.TempDir()
	path := filepath.Join(srcDir, "broken.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF garbage"), 0o644))

	_, err := NewAudioEncoder(16000, tmpDir).Encode(path)
	require.Error(t, err)
	assert.Empty(t, tempLeftovers(t, tmpDir))
}

func TestEncodeAudioOggUsesVorbisDecoder(t *testing.T) {
	srcDir, tmpDir := t.TempDir(), t.TempDir()
	path := filepath.Join(srcDir, "birds.OGG")
	require.NoError(t, os.WriteFile(path, []byte("OggS not a real stream"), 0o644))

	_, err := NewAudioEncoder(16000, tmpDir).Encode(path)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsupportedCodec, "ogg должен доходить до декодера")
	assert.Contains(t, err.Error(), "decode ogg")
	assert.Empty(t, tempLeftovers(t, tmpDir))
}

func TestRawAudioKeepsBytesAndExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voice.M4A")
	require.NoError(t, os.WriteFile(path, []byte("ftypM4A "), 0o644))

	out, err := RawAudio(path)
	require.NoError(t, err)
	assert.Equal(t, "m4a", out.Format)
	raw, err := base64.StdEncoding.DecodeString(out.Data)
	require.NoError(t, err)
	assert.Equal(t, "ftypM4A ", string(raw))

	_, err = RawAudio(filepath.Join(t.TempDir(), "nope.m4a"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestAudioEncoderSampleRate(t *testing.T) {
	assert.Equal(t, DefaultSampleRate, NewAudioEncoder(0, "").SampleRate())
	assert.Equal(t, 22050, NewAudioEncoder(22050, "").SampleRate())
}

func TestEncodeAudioMissingFile(t *testing.T) {
	_, err := NewAudioEncoder(0, t.TempDir()).Encode(filepath.Join(t.TempDir(), "nope.wav"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindImage, KindOf("cat.JPG"))
	assert.Equal(t, KindImage, KindOf("a.b.png"))
	assert.Equal(t, KindAudio, KindOf("song.m4a"))
	assert.Equal(t, KindAudio, KindOf("x.Mp3"))
	assert.Equal(t, KindUnknown, KindOf("index.html"))
	assert.Equal(t, KindUnknown, KindOf("noext"))
	assert.Equal(t, "audio/mpeg", MimeType("x.mp3"))
	assert.Equal(t, "image/jpeg", MimeType("x.jpeg"))
}

func TestCleanerRemovesOnlyStale(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "audio-1.wav")
	fresh := filepath.Join(dir, "audio-2.wav")
	other := filepath.Join(dir, "keep.wav")
	for _, p := range []string{stale, fresh, other} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))
	require.NoError(t, os.Chtimes(other, old, old))

	removed := NewCleaner(zap.NewNop().Sugar()).Clean(dir, TempPattern, time.Hour)
	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
	assert.FileExists(t, other)
}
