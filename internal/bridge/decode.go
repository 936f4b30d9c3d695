package bridge

import (
	"errors"
	"fmt"

	"github.com/banshee-data/mapbridge/internal/pairing"
	"github.com/banshee-data/mapbridge/internal/slam"
)

// ErrDecode is returned when a sensor message cannot be turned into an image.
var ErrDecode = errors.New("decode sensor image")

// Image encodings understood by the decoder.
const (
	EncodingRGB8   = "rgb8"
	EncodingBGR8   = "bgr8"
	EncodingRGBA8  = "rgba8"
	EncodingBGRA8  = "bgra8"
	EncodingMono8  = "mono8"
	EncodingMono16 = "mono16"
	Encoding16UC1  = "16UC1"
	Encoding32FC1  = "32FC1"
)

var colorBytesPerPixel = map[string]int{
	EncodingRGB8:  3,
	EncodingBGR8:  3,
	EncodingRGBA8: 4,
	EncodingBGRA8: 4,
	EncodingMono8: 1,
}

var depthBytesPerPixel = map[string]int{
	Encoding16UC1:  2,
	EncodingMono16: 2,
	Encoding32FC1:  4,
}

// DecodeColor validates a colour message and returns its image.
func DecodeColor(m pairing.Message) (slam.Image, error) {
	return decode(m, colorBytesPerPixel)
}

// DecodeDepth validates a depth message and returns its image.
func DecodeDepth(m pairing.Message) (slam.Image, error) {
	return decode(m, depthBytesPerPixel)
}

func decode(m pairing.Message, encodings map[string]int) (slam.Image, error) {
	bpp, ok := encodings[m.Encoding]
	if !ok {
		return slam.Image{}, fmt.Errorf("%w: unsupported encoding %q", ErrDecode, m.Encoding)
	}
	if m.Width <= 0 || m.Height <= 0 {
		return slam.Image{}, fmt.Errorf("%w: invalid dimensions %dx%d", ErrDecode, m.Width, m.Height)
	}
	if want := m.Width * m.Height * bpp; len(m.Data) != want {
		return slam.Image{}, fmt.Errorf("%w: %s %dx%d needs %d bytes, got %d",
			ErrDecode, m.Encoding, m.Width, m.Height, want, len(m.Data))
	}
	return slam.Image{
		Width:    m.Width,
		Height:   m.Height,
		Encoding: m.Encoding,
		Data:     m.Data,
	}, nil
}
