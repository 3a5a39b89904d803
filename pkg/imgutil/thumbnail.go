package imgutil

import (
	"bytes"
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// Thumbnail はプレビュー表示用に、長辺が maxDim 以下になるよう縮小した JPEG を返します。
// 元画像が十分小さい場合は縮小せずに JPEG へ変換するだけです。
func Thumbnail(data []byte, maxDim int) ([]byte, error) {
	if maxDim <= 0 {
		return nil, fmt.Errorf("maxDim must be positive: %d", maxDim)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("画像のデコードに失敗しました: %w", err)
	}

	w, h := fitWithin(src.Bounds().Dx(), src.Bounds().Dy(), maxDim)
	if w == src.Bounds().Dx() && h == src.Bounds().Dy() {
		return encodeJPEG(src, DefaultQuality)
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return encodeJPEG(dst, DefaultQuality)
}

// fitWithin は縦横比を保ったまま長辺を maxDim に収めたサイズを返します。
func fitWithin(w, h, maxDim int) (int, int) {
	if w <= maxDim && h <= maxDim {
		return w, h
	}
	if w >= h {
		nh := h * maxDim / w
		if nh < 1 {
			nh = 1
		}
		return maxDim, nh
	}
	nw := w * maxDim / h
	if nw < 1 {
		nw = 1
	}
	return nw, maxDim
}
