// Package scan turns captured images into QR payloads.
package scan

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// ErrDecodeFailure means the image held no readable QR code.
var ErrDecodeFailure = errors.New("no readable QR code in image")

// Decoder extracts a payload from an encoded image.
type Decoder interface {
	Decode(r io.Reader) (string, error)
}

// ImageDecoder decodes PNG, JPEG and GIF stills.
type ImageDecoder struct{}

// Decode reads an image and returns the QR payload it contains.
func (ImageDecoder) Decode(r io.Reader) (string, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}
	return DecodeImage(img)
}

// DecodeImage returns the QR payload in an already decoded image, e.g. a
// camera frame.
func DecodeImage(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}
	result, err := qrcode.NewQRCodeReader().Decode(bmp, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}
	text := strings.TrimSpace(result.GetText())
	if text == "" {
		return "", ErrDecodeFailure
	}
	return text, nil
}
