package extract

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

const (
	maxPixels = 18_000_000
	// MaxDecodePixels bounds what is ever decoded into memory.
	MaxDecodePixels = 50_000_000
	maxSide         = 20_000
)

var ErrImageTooLarge = errors.New("image dimensions exceed decode limit")

// CheckDimensions reads only the image header and rejects images whose
// bitmap would exceed MaxDecodePixels.
func CheckDimensions(data []byte) (image.Config, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return cfg, fmt.Errorf("decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return cfg, errors.New("empty image")
	}
	if cfg.Width > maxSide || cfg.Height > maxSide || int64(cfg.Width)*int64(cfg.Height) > MaxDecodePixels {
		return cfg, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}
	return cfg, nil
}

// Preprocess prepares a photo or scan for OCR: greyscale, contrast stretched
// to the full range, sharpened, re-encoded as PNG.
func Preprocess(data []byte) ([]byte, error) {
	if _, err := CheckDimensions(data); err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("empty image")
	}
	if px := b.Dx() * b.Dy(); px > maxPixels {
		scale := math.Sqrt(float64(maxPixels) / float64(px))
		img = imaging.Resize(img, int(float64(b.Dx())*scale+0.5), 0, imaging.Lanczos)
	}

	grey := imaging.Grayscale(img)
	lo, hi := lumaRange(grey.Pix)
	stretched := grey
	if hi > lo {
		span := float64(hi - lo)
		stretched = imaging.AdjustFunc(grey, func(c color.NRGBA) color.NRGBA {
			var v uint8
			switch {
			case c.R <= lo:
				v = 0
			case c.R >= hi:
				v = 255
			default:
				v = uint8(math.Round(float64(c.R-lo) * 255 / span))
			}
			return color.NRGBA{R: v, G: v, B: v, A: c.A}
		})
	}
	sharp := imaging.Sharpen(stretched, 1.0)

	var out bytes.Buffer
	if err := imaging.Encode(&out, sharp, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return out.Bytes(), nil
}

// lumaRange returns the darkest and brightest red channel value of an NRGBA
// buffer; after Grayscale all three channels are equal.
func lumaRange(pix []uint8) (lo, hi uint8) {
	lo, hi = 255, 0
	for i := 0; i+3 < len(pix); i += 4 {
		v := pix[i]
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
