package scan

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_RoundTrip(t *testing.T) {
	encoded, err := qrcode.Encode("alice-171234", qrcode.Medium, 256)
	require.NoError(t, err)

	got, err := ImageDecoder{}.Decode(bytes.NewReader(encoded))
	require.NoError(t, err)
	assert.Equal(t, "alice-171234", got)
}

func TestDecode_BlankImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = color.Gray{Y: 0xff}.Y
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	_, err := ImageDecoder{}.Decode(&buf)
	assert.ErrorIs(t, err, ErrDecodeFailure)
}

func TestDecode_NotAnImage(t *testing.T) {
	_, err := ImageDecoder{}.Decode(strings.NewReader("definitely not a png"))
	assert.ErrorIs(t, err, ErrDecodeFailure)
}
