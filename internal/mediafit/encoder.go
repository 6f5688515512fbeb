// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mediafit

import (
	"bytes"
	"image"
	"image/jpeg"
	"math"

	// Decoders for the formats users attach.
	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// JPEGEncoder re-encodes images as baseline JPEG.
type JPEGEncoder struct{}

// Decode decodes any registered image format.
func (JPEGEncoder) Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

// Encode scales img by scale and encodes it at quality.
func (JPEGEncoder) Encode(img image.Image, scale float64, quality int) ([]byte, error) {
	src := img
	if scale < 1.0 {
		b := img.Bounds()
		w := max(1, int(math.Round(float64(b.Dx())*scale)))
		h := max(1, int(math.Round(float64(b.Dy())*scale)))
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		src = dst
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MimeType returns image/jpeg.
func (JPEGEncoder) MimeType() string { return "image/jpeg" }

// Extension returns .jpg.
func (JPEGEncoder) Extension() string { return ".jpg" }
