package itunes

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // GIF decoder registration
	_ "image/jpeg" // JPEG decoder registration
	_ "image/png"  // PNG decoder registration

	_ "golang.org/x/image/bmp"  // BMP decoder registration
	_ "golang.org/x/image/webp" // WebP decoder registration

	"github.com/mmcdole/albumcache/internal/domain"
)

// ValidateImage checks that data starts with a decodable image header and
// returns its format name ("jpeg", "png", ...). Only the header is parsed.
func ValidateImage(data []byte) (string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return "", fmt.Errorf("%w: %dx%d", domain.ErrInvalidImage, cfg.Width, cfg.Height)
	}
	return format, nil
}
