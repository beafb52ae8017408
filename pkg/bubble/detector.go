package bubble

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"sort"

	"github.com/shouni/go-manga-press/pkg/domain"
)

// Options は吹き出し判定のしきい値です。いずれも経験的に選んだ値で、設定から変更できます。
type Options struct {
	Threshold      uint8   // これより明るい画素を白として扱います
	MinArea        float64 // 面積の下限（この値自体は含みません）
	MaxArea        float64 // 面積の上限（この値自体は含みません）
	MinVertices    int     // 近似多角形の頂点数はこれより多い必要があります
	MinAspect      float64
	MaxAspect      float64
	MinCircularity float64
	ApproxEpsilon  float64 // 輪郭長に対する近似許容誤差の比率
}

// DefaultOptions は既定のしきい値を返します。
func DefaultOptions() Options {
	return Options{
		Threshold:      240,
		MinArea:        500,
		MaxArea:        50000,
		MinVertices:    6,
		MinAspect:      0.5,
		MaxAspect:      2.0,
		MinCircularity: 0.6,
		ApproxEpsilon:  0.02,
	}
}

// Metrics は1つの輪郭から計測した形状の特徴量です。
type Metrics struct {
	Bounds      image.Rectangle
	Area        float64
	Perimeter   float64
	Vertices    int
	AspectRatio float64
	Circularity float64
}

// Detector はラスター画像から吹き出し候補の領域を検出します。
type Detector struct {
	opts Options
}

// NewDetector は Detector を初期化します。
func NewDetector(opts Options) (*Detector, error) {
	if opts.MinArea < 0 || opts.MaxArea <= opts.MinArea {
		return nil, fmt.Errorf("面積のしきい値が不正です: min=%v max=%v", opts.MinArea, opts.MaxArea)
	}
	if opts.MinAspect <= 0 || opts.MaxAspect < opts.MinAspect {
		return nil, fmt.Errorf("縦横比のしきい値が不正です: min=%v max=%v", opts.MinAspect, opts.MaxAspect)
	}
	if opts.ApproxEpsilon <= 0 {
		return nil, fmt.Errorf("近似許容誤差は正の値である必要があります: %v", opts.ApproxEpsilon)
	}
	return &Detector{opts: opts}, nil
}

// Accept は4つのしきい値だけで吹き出しかどうかを判定します。
func (d *Detector) Accept(m Metrics) bool {
	o := d.opts
	return m.Area > o.MinArea && m.Area < o.MaxArea &&
		m.Vertices > o.MinVertices &&
		m.AspectRatio >= o.MinAspect && m.AspectRatio <= o.MaxAspect &&
		m.Circularity > o.MinCircularity
}

// DetectBytes は PNG/JPEG をデコードしてから Detect を実行します。
func (d *Detector) DetectBytes(data []byte) ([]domain.BubbleRegion, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("画像のデコードに失敗しました: %w", err)
	}
	return d.Detect(img), nil
}

// Detect は白領域の外側輪郭を解析し、吹き出しと判定した領域を上から順に返します。
func (d *Detector) Detect(img image.Image) []domain.BubbleRegion {
	bin := binarize(img, d.opts.Threshold)
	comps := bin.externalComponents()

	var regions []domain.BubbleRegion
	for _, c := range comps {
		// 画素中心を結ぶ多角形の面積は画素数を超えないため、輪郭を追う前に除外できます
		if float64(c.size) <= d.opts.MinArea {
			continue
		}
		contour := bin.traceContour(c)
		m := measure(contour, d.opts.ApproxEpsilon)
		if !d.Accept(m) {
			continue
		}
		regions = append(regions, domain.BubbleRegion{
			Bounds:      domain.RectFrom(m.Bounds),
			Area:        m.Area,
			Vertices:    m.Vertices,
			AspectRatio: m.AspectRatio,
			Circularity: m.Circularity,
			Confidence:  confidence(m),
		})
	}

	sort.SliceStable(regions, func(i, j int) bool {
		if regions[i].Bounds.Y != regions[j].Bounds.Y {
			return regions[i].Bounds.Y < regions[j].Bounds.Y
		}
		return regions[i].Bounds.X < regions[j].Bounds.X
	})
	return regions
}

// confidence は円形度を 0〜1 に収めた形状スコアです。
func confidence(m Metrics) float64 {
	if m.Circularity >= 1 {
		return 1
	}
	if m.Circularity <= 0 {
		return 0
	}
	return m.Circularity
}

// bitmap は二値化した画像です。white が true の画素が前景です。
type bitmap struct {
	w, h   int
	white  []bool
	labels []int32 // 連結成分のラベル。0 は背景
}

func binarize(img image.Image, threshold uint8) *bitmap {
	b := img.Bounds()
	bm := &bitmap{w: b.Dx(), h: b.Dy(), white: make([]bool, b.Dx()*b.Dy())}
	for y := 0; y < bm.h; y++ {
		for x := 0; x < bm.w; x++ {
			g := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
			bm.white[y*bm.w+x] = g.Y > threshold
		}
	}
	return bm
}

func (bm *bitmap) at(x, y int) bool {
	return x >= 0 && y >= 0 && x < bm.w && y < bm.h && bm.white[y*bm.w+x]
}
