package bubble

import (
	"image"
	"image/color"
	"testing"
)

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := NewDetector(DefaultOptions())
	if err != nil {
		t.Fatalf("初期化に失敗しました: %v", err)
	}
	return d
}

func TestDetector_Accept(t *testing.T) {
	d := newTestDetector(t)
	valid := Metrics{Area: 2000, Vertices: 8, AspectRatio: 1.0, Circularity: 0.8}

	tests := []struct {
		name   string
		modify func(m *Metrics)
		want   bool
	}{
		{"正常な形状は採用されること", func(m *Metrics) {}, true},
		{"面積500は除外されること", func(m *Metrics) { m.Area = 500 }, false},
		{"面積501は採用されること", func(m *Metrics) { m.Area = 501 }, true},
		{"面積50000は除外されること", func(m *Metrics) { m.Area = 50000 }, false},
		{"面積49999は採用されること", func(m *Metrics) { m.Area = 49999 }, true},
		{"頂点数6は除外されること", func(m *Metrics) { m.Vertices = 6 }, false},
		{"頂点数7は採用されること", func(m *Metrics) { m.Vertices = 7 }, true},
		{"縦横比0.5は採用されること", func(m *Metrics) { m.AspectRatio = 0.5 }, true},
		{"縦横比0.49は除外されること", func(m *Metrics) { m.AspectRatio = 0.49 }, false},
		{"縦横比2.0は採用されること", func(m *Metrics) { m.AspectRatio = 2.0 }, true},
		{"縦横比2.01は除外されること", func(m *Metrics) { m.AspectRatio = 2.01 }, false},
		{"円形度0.6は除外されること", func(m *Metrics) { m.Circularity = 0.6 }, false},
		{"円形度0.61は採用されること", func(m *Metrics) { m.Circularity = 0.61 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid
			tt.modify(&m)
			if got := d.Accept(m); got != tt.want {
				t.Errorf("Accept(%+v): 期待値 %v, 実際の値 %v", m, tt.want, got)
			}
		})
	}
}

func fillEllipse(img *image.Gray, cx, cy, rx, ry int, c color.Gray) {
	for y := cy - ry; y <= cy+ry; y++ {
		for x := cx - rx; x <= cx+rx; x++ {
			dx := float64(x-cx) / float64(rx)
			dy := float64(y-cy) / float64(ry)
			if dx*dx+dy*dy <= 1 {
				img.SetGray(x, y, c)
			}
		}
	}
}

func fillRect(img *image.Gray, r image.Rectangle, c color.Gray) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetGray(x, y, c)
		}
	}
}

func TestDetector_Detect(t *testing.T) {
	d := newTestDetector(t)
	white := color.Gray{Y: 255}

	t.Run("円と楕円を検出し、矩形と小さな円は除外すること", func(t *testing.T) {
		img := image.NewGray(image.Rect(0, 0, 400, 400))
		fillRect(img, img.Bounds(), color.Gray{Y: 100})
		fillEllipse(img, 120, 120, 40, 40, white)
		fillEllipse(img, 280, 280, 60, 40, white)
		fillRect(img, image.Rect(250, 40, 310, 80), white)
		fillEllipse(img, 50, 350, 8, 8, white)

		regions := d.Detect(img)
		if len(regions) != 2 {
			t.Fatalf("検出数: 期待値 2, 実際の値 %d (%+v)", len(regions), regions)
		}

		circle := regions[0]
		if circle.Bounds.X != 80 || circle.Bounds.Y != 80 || circle.Bounds.Width != 81 || circle.Bounds.Height != 81 {
			t.Errorf("円の外接矩形が不正です: %+v", circle.Bounds)
		}
		if circle.Vertices <= 6 || circle.Circularity <= 0.6 {
			t.Errorf("円の特徴量が不正です: %+v", circle)
		}

		ellipse := regions[1]
		if ellipse.AspectRatio < 1.4 || ellipse.AspectRatio > 1.6 {
			t.Errorf("楕円の縦横比: 実際の値 %v", ellipse.AspectRatio)
		}
		if ellipse.Confidence <= 0 || ellipse.Confidence > 1 {
			t.Errorf("信頼度が範囲外です: %v", ellipse.Confidence)
		}
	})

	t.Run("他の白領域の穴にある白領域は外側輪郭として扱わないこと", func(t *testing.T) {
		img := image.NewGray(image.Rect(0, 0, 200, 200))
		fillRect(img, img.Bounds(), white)
		fillEllipse(img, 100, 100, 60, 60, color.Gray{Y: 0})
		fillEllipse(img, 100, 100, 40, 40, white)

		if regions := d.Detect(img); len(regions) != 0 {
			t.Errorf("検出数: 期待値 0, 実際の値 %d (%+v)", len(regions), regions)
		}
	})

	t.Run("白画素がない画像では何も検出しないこと", func(t *testing.T) {
		img := image.NewGray(image.Rect(0, 0, 50, 50))
		if regions := d.Detect(img); len(regions) != 0 {
			t.Errorf("検出数: 期待値 0, 実際の値 %d", len(regions))
		}
	})
}

func TestMeasure_Rectangle(t *testing.T) {
	bm := binarize(rectImage(), 240)
	comps := bm.externalComponents()
	if len(comps) != 1 {
		t.Fatalf("成分数: 期待値 1, 実際の値 %d", len(comps))
	}
	m := measure(bm.traceContour(comps[0]), 0.02)
	if m.Vertices != 4 {
		t.Errorf("矩形の頂点数: 期待値 4, 実際の値 %d", m.Vertices)
	}
	if m.Bounds.Dx() != 30 || m.Bounds.Dy() != 20 {
		t.Errorf("外接矩形: 実際の値 %v", m.Bounds)
	}
	// 画素中心を結ぶ矩形は 29x19
	if m.Area != 29*19 {
		t.Errorf("面積: 期待値 %d, 実際の値 %v", 29*19, m.Area)
	}
}

func rectImage() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 50, 40))
	fillRect(img, image.Rect(10, 10, 40, 30), color.Gray{Y: 255})
	return img
}
