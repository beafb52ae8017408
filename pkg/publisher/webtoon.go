package publisher

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	xdraw "golang.org/x/image/draw"
)

// webtoonGap はページ間の余白（ピクセル）です。
const webtoonGap = 40

// BuildWebtoon はページ画像を width に縮小して縦に連結した PNG を返します。
func BuildWebtoon(pages []Page, width int) ([]byte, error) {
	if width <= 0 {
		return nil, fmt.Errorf("縦読み画像の幅が不正です: %d", width)
	}

	scaled := make([]image.Image, 0, len(pages))
	height := 0
	for _, page := range pages {
		src, err := png.Decode(bytes.NewReader(page.Image))
		if err != nil {
			return nil, fmt.Errorf("ページ %d のデコードに失敗しました: %w", page.Script.PageNumber, err)
		}
		b := src.Bounds()
		h := b.Dy() * width / b.Dx()
		dst := image.NewRGBA(image.Rect(0, 0, width, h))
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
		scaled = append(scaled, dst)
		height += h
	}
	if len(scaled) > 1 {
		height += webtoonGap * (len(scaled) - 1)
	}

	strip := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.Draw(strip, strip.Bounds(), image.NewUniform(color.White), image.Point{}, xdraw.Src)
	y := 0
	for _, img := range scaled {
		r := img.Bounds().Add(image.Pt(0, y))
		xdraw.Draw(strip, r, img, image.Point{}, xdraw.Src)
		y += img.Bounds().Dy() + webtoonGap
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, strip); err != nil {
		return nil, fmt.Errorf("縦読み画像のエンコードに失敗しました: %w", err)
	}
	return buf.Bytes(), nil
}
