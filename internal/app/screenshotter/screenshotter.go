package screenshotter

import (
	"errors"
	"image"
	"image/draw"

	"github.com/kbinani/screenshot"
	xdraw "golang.org/x/image/draw"
	"go.uber.org/zap"
)

// ErrNoDisplays — нет активных мониторов (headless окружение).
var ErrNoDisplays = errors.New("no active displays")

// maxWidth — ширина, до которой уменьшается склеенный кадр.
const maxWidth = 1280

// Screenshotter снимает все мониторы одним кадром для отправки модели как ожидающей картинки.
type Screenshotter struct {
	logger *zap.SugaredLogger
}

func New(logger *zap.SugaredLogger) *Screenshotter {
	return &Screenshotter{logger: logger}
}

// Capture снимает объединённую область всех мониторов.
func (s *Screenshotter) Capture() (image.Image, error) {
	n := screenshot.NumActiveDisplays()
	if n <= 0 {
		return nil, ErrNoDisplays
	}

	// объединённые границы всех мониторов
	union := screenshot.GetDisplayBounds(0)
	for i := 1; i < n; i++ {
		union = union.Union(screenshot.GetDisplayBounds(i))
	}

	canvas := image.NewRGBA(union)
	captured := 0
	for i := range n {
		b := screenshot.GetDisplayBounds(i)
		img, err := screenshot.CaptureRect(b)
		if err != nil {
			s.logger.Errorw("Failed to capture display", "index", i, "error", err)
			continue
		}
		dstPoint := image.Pt(b.Min.X-union.Min.X, b.Min.Y-union.Min.Y)
		draw.Draw(canvas, image.Rectangle{Min: dstPoint, Max: dstPoint.Add(b.Size())}, img, image.Point{}, draw.Src)
		captured++
	}
	if captured == 0 {
		return nil, errors.New("screenshot: every display failed")
	}
	return fit(canvas, maxWidth), nil
}

// fit уменьшает картинку до ширины width с сохранением пропорций.
func fit(src image.Image, width int) image.Image {
	b := src.Bounds()
	if b.Dx() <= width {
		return src
	}
	height := max(1, b.Dy()*width/b.Dx())
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst
}
