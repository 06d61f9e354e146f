package media

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DefaultThumbnailSize — сторона квадрата, к которому приводится картинка перед отправкой модели.
const DefaultThumbnailSize = 250

// EncodeImage приводит картинку к size×size и возвращает PNG в виде data URL.
// Размер фиксирован, чтобы стоимость картинки в токенах не зависела от исходника.
func EncodeImage(img image.Image, size int) (string, error) {
	if img == nil {
		return "", fmt.Errorf("encode image: nil image")
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return "", fmt.Errorf("invalid image size: %dx%d", b.Dx(), b.Dy())
	}
	if size <= 0 {
		size = DefaultThumbnailSize
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	return DataURL("image/png", buf.Bytes()), nil
}

// DataURL собирает data URL из MIME типа и содержимого.
func DataURL(mimeType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}

// DecodeImageFile читает картинку с диска (png, jpeg, gif, bmp, webp).
func DecodeImageFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}
