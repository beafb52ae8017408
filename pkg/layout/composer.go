package layout

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"time"

	"github.com/shouni/go-manga-press/pkg/domain"

	xdraw "golang.org/x/image/draw"
)

// PanelImage はページに貼り込む1枚分の画像です。
type PanelImage struct {
	PanelNumber int
	Type        domain.PanelType
	Image       []byte // PNG/JPEG
}

// ComposedPage は合成済みのページです。
type ComposedPage struct {
	Layout domain.PageLayout
	Image  []byte // PNG
}

// Composer はパネル画像からページを合成します。
type Composer interface {
	Compose(ctx context.Context, pageNumber int, layoutName string, panels []PanelImage) (*ComposedPage, error)
}

// LocalComposer はページの割り付けと描画をプロセス内で行います。
type LocalComposer struct {
	geo Geometry
}

// NewLocalComposer は LocalComposer を初期化します。
func NewLocalComposer(geo Geometry) *LocalComposer {
	return &LocalComposer{geo: geo}
}

// Compose はパネル番号順に割り付けたセルへ各パネルを縮小・拡大して貼り込み、枠線を描いた PNG を返します。
// close_up と dialogue は縦横比を保ち、establishing_shot と action はセルに合わせて引き伸ばします。
func (c *LocalComposer) Compose(ctx context.Context, pageNumber int, layoutName string, panels []PanelImage) (*ComposedPage, error) {
	start := time.Now()
	l, err := c.geo.Plan(pageNumber, layoutName, len(panels))
	if err != nil {
		return nil, fmt.Errorf("ページ %d: %w", pageNumber, err)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, l.CanvasWidth, l.CanvasHeight))
	fill(canvas, canvas.Bounds(), color.White)

	for i, p := range panels {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCancellationRequested, err)
		}
		src, _, err := image.Decode(bytes.NewReader(p.Image))
		if err != nil {
			return nil, fmt.Errorf("ページ %d のパネル %d の画像のデコードに失敗しました: %w", pageNumber, p.PanelNumber, err)
		}
		pl := l.Placements[i]
		pl.PanelNumber = p.PanelNumber
		l.Placements[i] = pl

		paste(canvas, pl.Rect().Image(), src, p.Type.PreservesAspect())
		drawBorder(canvas, pl.Rect().Image(), l.Border)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("ページ %d のエンコードに失敗しました: %w", pageNumber, err)
	}

	slog.InfoContext(ctx, "Page composed",
		"page", pageNumber,
		"layout", l.Name,
		"panels", len(panels),
		"duration", time.Since(start).Round(time.Millisecond))
	return &ComposedPage{Layout: l, Image: buf.Bytes()}, nil
}

// paste は src を dst の r に描画します。preserve の場合は縦横比を保って中央に置き、余白は白のままにします。
func paste(dst *image.RGBA, r image.Rectangle, src image.Image, preserve bool) {
	target := r
	if preserve {
		target = fitRect(r, src.Bounds().Size())
	}
	xdraw.CatmullRom.Scale(dst, target, src, src.Bounds(), xdraw.Over, nil)
}

// fitRect は size の縦横比を保ったまま r に内接する中央寄せの矩形を返します。
func fitRect(r image.Rectangle, size image.Point) image.Rectangle {
	if size.X <= 0 || size.Y <= 0 {
		return r
	}
	w, h := r.Dx(), r.Dy()
	if w*size.Y > h*size.X {
		w = h * size.X / size.Y
	} else {
		h = w * size.Y / size.X
	}
	x := r.Min.X + (r.Dx()-w)/2
	y := r.Min.Y + (r.Dy()-h)/2
	return image.Rect(x, y, x+w, y+h)
}

// drawBorder は r の外側に thickness の黒枠を描きます。
func drawBorder(dst *image.RGBA, r image.Rectangle, thickness int) {
	if thickness <= 0 {
		return
	}
	outer := r.Inset(-thickness)
	fill(dst, image.Rect(outer.Min.X, outer.Min.Y, outer.Max.X, r.Min.Y), color.Black)
	fill(dst, image.Rect(outer.Min.X, r.Max.Y, outer.Max.X, outer.Max.Y), color.Black)
	fill(dst, image.Rect(outer.Min.X, r.Min.Y, r.Min.X, r.Max.Y), color.Black)
	fill(dst, image.Rect(r.Max.X, r.Min.Y, outer.Max.X, r.Max.Y), color.Black)
}

func fill(dst *image.RGBA, r image.Rectangle, c color.Color) {
	xdraw.Draw(dst, r, image.NewUniform(c), image.Point{}, xdraw.Src)
}
