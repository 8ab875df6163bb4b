package imagemerge

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// ErrUndecodable marks a downloaded body that is not a supported image.
var ErrUndecodable = errors.New("imagemerge: undecodable image")

type imageInfo struct {
	Format string
	Width  int
	Height int
}

// validateImageData checks that data carries a decodable image header with
// non-zero dimensions. Only the header is parsed.
func validateImageData(data []byte) (imageInfo, error) {
	if len(data) == 0 {
		return imageInfo{}, fmt.Errorf("%w: empty body", ErrUndecodable)
	}
	imgCfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return imageInfo{}, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if imgCfg.Width <= 0 || imgCfg.Height <= 0 {
		return imageInfo{}, fmt.Errorf("%w: %dx%d", ErrUndecodable, imgCfg.Width, imgCfg.Height)
	}
	return imageInfo{Format: format, Width: imgCfg.Width, Height: imgCfg.Height}, nil
}
