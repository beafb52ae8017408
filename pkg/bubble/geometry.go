package bubble

import (
	"image"
	"math"
)

// measure は閉じた輪郭から特徴量を計算します。
func measure(contour []image.Point, epsilonRatio float64) Metrics {
	m := Metrics{Bounds: boundingBox(contour)}
	m.Area = polygonArea(contour)
	m.Perimeter = arcLength(contour)
	m.Vertices = approxVertices(contour, epsilonRatio*m.Perimeter)
	if h := m.Bounds.Dy(); h > 0 {
		m.AspectRatio = float64(m.Bounds.Dx()) / float64(h)
	}
	if m.Perimeter > 0 {
		m.Circularity = 4 * math.Pi * m.Area / (m.Perimeter * m.Perimeter)
	}
	return m
}

// boundingBox は輪郭を囲む矩形を返します。幅と高さは画素数（max-min+1）です。
func boundingBox(pts []image.Point) image.Rectangle {
	if len(pts) == 0 {
		return image.Rectangle{}
	}
	r := image.Rectangle{Min: pts[0], Max: pts[0]}
	for _, p := range pts[1:] {
		r.Min.X = min(r.Min.X, p.X)
		r.Min.Y = min(r.Min.Y, p.Y)
		r.Max.X = max(r.Max.X, p.X)
		r.Max.Y = max(r.Max.Y, p.Y)
	}
	r.Max = r.Max.Add(image.Pt(1, 1))
	return r
}

// polygonArea は靴紐公式による多角形の面積です。
func polygonArea(pts []image.Point) float64 {
	if len(pts) < 3 {
		return 0
	}
	var sum int
	for i, p := range pts {
		q := pts[(i+1)%len(pts)]
		sum += p.X*q.Y - q.X*p.Y
	}
	return math.Abs(float64(sum)) / 2
}

// arcLength は閉曲線としての輪郭長です。
func arcLength(pts []image.Point) float64 {
	if len(pts) < 2 {
		return 0
	}
	var total float64
	for i, p := range pts {
		total += dist(p, pts[(i+1)%len(pts)])
	}
	return total
}

// approxVertices は Douglas-Peucker 法で閉曲線を近似した多角形の頂点数を返します。
// 始点と、始点から最も遠い点で輪郭を2本に分け、それぞれを近似します。
func approxVertices(pts []image.Point, epsilon float64) int {
	if len(pts) < 3 {
		return len(pts)
	}
	far, best := 0, -1.0
	for i, p := range pts {
		if d := dist(pts[0], p); d > best {
			far, best = i, d
		}
	}
	if far == 0 {
		return 1
	}

	first := pts[:far+1]
	second := make([]image.Point, 0, len(pts)-far+1)
	second = append(second, pts[far:]...)
	second = append(second, pts[0])

	// 分割点の2点は両方の折れ線で数えているため差し引きます
	return simplifiedCount(first, epsilon) + simplifiedCount(second, epsilon) - 2
}

// simplifiedCount は開いた折れ線を近似したときに残る点の数（両端を含む）です。
func simplifiedCount(pts []image.Point, epsilon float64) int {
	if len(pts) <= 2 {
		return len(pts)
	}
	keep := 2
	type span struct{ lo, hi int }
	stack := []span{{0, len(pts) - 1}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		idx, maxDist := -1, epsilon
		for i := s.lo + 1; i < s.hi; i++ {
			if d := segmentDistance(pts[i], pts[s.lo], pts[s.hi]); d > maxDist {
				idx, maxDist = i, d
			}
		}
		if idx < 0 {
			continue
		}
		keep++
		stack = append(stack, span{s.lo, idx}, span{idx, s.hi})
	}
	return keep
}

// segmentDistance は点 p と線分 ab の距離です。
func segmentDistance(p, a, b image.Point) float64 {
	dx, dy := float64(b.X-a.X), float64(b.Y-a.Y)
	if dx == 0 && dy == 0 {
		return dist(p, a)
	}
	t := (float64(p.X-a.X)*dx + float64(p.Y-a.Y)*dy) / (dx*dx + dy*dy)
	t = math.Max(0, math.Min(1, t))
	x := float64(a.X) + t*dx
	y := float64(a.Y) + t*dy
	return math.Hypot(float64(p.X)-x, float64(p.Y)-y)
}

func dist(a, b image.Point) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))
}
