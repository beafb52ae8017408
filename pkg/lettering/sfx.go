package lettering

import (
	"image"
	"image/color"
	"image/draw"
	"strings"

	"github.com/shouni/go-manga-press/pkg/director"
	"github.com/shouni/go-manga-press/pkg/domain"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

var sfxColors = map[string]color.RGBA{
	"red":  {R: 0xd0, G: 0x10, B: 0x10, A: 0xff},
	"blue": {R: 0x10, G: 0x30, B: 0xc0, A: 0xff},
}

// renderSFX は白い縁取り付きの効果音を透過 RGBA 画像として描画します。
func renderSFX(face font.Face, sfx domain.SoundEffect) *image.RGBA {
	text := strings.TrimSpace(sfx.Text)
	m := face.Metrics()
	outline := max(1, m.Height.Ceil()/12)

	width := font.MeasureString(face, text).Ceil() + 2*outline
	height := m.Height.Ceil() + 2*outline
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	fill, ok := sfxColors[strings.ToLower(sfx.Style)]
	if !ok {
		fill = color.RGBA{A: 0xff}
	}
	baseline := outline + m.Ascent.Ceil()

	d := &font.Drawer{Dst: img, Src: image.NewUniform(color.White), Face: face}
	for dy := -outline; dy <= outline; dy++ {
		for dx := -outline; dx <= outline; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			d.Dot = fixed.P(outline+dx, baseline+dy)
			d.DrawString(text)
		}
	}
	d.Src = image.NewUniform(fill)
	d.Dot = fixed.P(outline, baseline)
	d.DrawString(text)
	return img
}

// sfxPlacer は吹き出しや枠線、先に置いた効果音との重なりが最小になる位置を選びます。
type sfxPlacer struct {
	area     image.Rectangle
	avoid    []image.Rectangle
	band     int // 枠線付近として避ける幅
	layout   *director.LayoutManager
	occupied []image.Rectangle
}

func newSFXPlacer(area image.Rectangle, bubbles []domain.BubbleRegion, layout *director.LayoutManager) *sfxPlacer {
	p := &sfxPlacer{
		area:   area,
		band:   max(4, min(area.Dx(), area.Dy())/25),
		layout: layout,
	}
	for _, b := range bubbles {
		r := b.Bounds.Image()
		pad := max(r.Dx(), r.Dy()) / 10
		p.avoid = append(p.avoid, r.Inset(-pad))
	}
	return p
}

// place は index 番目の効果音の配置を決め、占有領域として記録します。収まらない場合は false です。
func (p *sfxPlacer) place(index int, size image.Point) (image.Rectangle, bool) {
	if size.X > p.area.Dx() || size.Y > p.area.Dy() {
		return image.Rectangle{}, false
	}

	candidates := p.layout.Anchors(index, p.area, size)
	stepX, stepY := max(1, size.X/2), max(1, size.Y/2)
	for y := p.area.Min.Y; y+size.Y <= p.area.Max.Y; y += stepY {
		for x := p.area.Min.X; x+size.X <= p.area.Max.X; x += stepX {
			candidates = append(candidates, image.Pt(x, y))
		}
	}

	best, bestScore := image.Rectangle{}, -1
	for _, c := range candidates {
		r := image.Rectangle{Min: c, Max: c.Add(size)}
		score := p.score(r)
		if bestScore < 0 || score < bestScore {
			best, bestScore = r, score
			if score == 0 {
				break
			}
		}
	}
	if bestScore < 0 {
		return image.Rectangle{}, false
	}
	p.occupied = append(p.occupied, best)
	return best, true
}

func (p *sfxPlacer) score(r image.Rectangle) int {
	total := 0
	for _, a := range p.avoid {
		total += rectArea(r.Intersect(a))
	}
	for _, o := range p.occupied {
		total += rectArea(r.Intersect(o))
	}
	inner := p.area.Inset(p.band)
	total += rectArea(r) - rectArea(r.Intersect(inner))
	return total
}

func rectArea(r image.Rectangle) int {
	if r.Empty() {
		return 0
	}
	return r.Dx() * r.Dy()
}

// composite は効果音画像を dst の r にアルファ合成します。
func composite(dst draw.Image, r image.Rectangle, src image.Image) {
	draw.Draw(dst, r, src, src.Bounds().Min, draw.Over)
}
