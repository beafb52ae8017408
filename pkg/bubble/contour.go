package bubble

import "image"

// component は8近傍で連結した白画素の集まりです。
type component struct {
	label int32
	first image.Point // ラスター走査で最初に見つかった画素（最上段の最左）
	size  int
}

var (
	neighbours4 = [4]image.Point{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	// 時計回り（画像座標系）。西から始まります
	moore = [8]image.Point{{-1, 0}, {-1, -1}, {0, -1}, {1, -1}, {1, 0}, {1, 1}, {0, 1}, {-1, 1}}
)

// externalComponents は、他の白領域の穴の中に含まれていない白の連結成分を返します。
// 画像の縁に接するか、縁から4近傍でたどれる黒領域に接する成分が外側の成分です。
func (bm *bitmap) externalComponents() []component {
	bm.labels = make([]int32, len(bm.white))
	comps := bm.label()
	outside := bm.outsideBlack()

	var external []component
	for _, c := range comps {
		p := c.first
		// 最初の画素の真上は、この成分を直接囲む黒領域に属します
		if p.Y == 0 || bm.touchesBorder(c) || outside[(p.Y-1)*bm.w+p.X] {
			external = append(external, c)
		}
	}
	return external
}

func (bm *bitmap) label() []component {
	var comps []component
	var next int32
	stack := make([]image.Point, 0, 1024)

	for y := 0; y < bm.h; y++ {
		for x := 0; x < bm.w; x++ {
			i := y*bm.w + x
			if !bm.white[i] || bm.labels[i] != 0 {
				continue
			}
			next++
			c := component{label: next, first: image.Pt(x, y)}
			bm.labels[i] = next
			stack = append(stack[:0], image.Pt(x, y))
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				c.size++
				for _, d := range moore {
					q := p.Add(d)
					if !bm.at(q.X, q.Y) {
						continue
					}
					j := q.Y*bm.w + q.X
					if bm.labels[j] == 0 {
						bm.labels[j] = next
						stack = append(stack, q)
					}
				}
			}
			comps = append(comps, c)
		}
	}
	return comps
}

func (bm *bitmap) touchesBorder(c component) bool {
	for x := 0; x < bm.w; x++ {
		if bm.labels[x] == c.label || bm.labels[(bm.h-1)*bm.w+x] == c.label {
			return true
		}
	}
	for y := 0; y < bm.h; y++ {
		if bm.labels[y*bm.w] == c.label || bm.labels[y*bm.w+bm.w-1] == c.label {
			return true
		}
	}
	return false
}

// outsideBlack は画像の縁から4近傍でたどれる黒画素を true にしたマスクを返します。
func (bm *bitmap) outsideBlack() []bool {
	seen := make([]bool, len(bm.white))
	var stack []image.Point
	push := func(x, y int) {
		i := y*bm.w + x
		if !bm.white[i] && !seen[i] {
			seen[i] = true
			stack = append(stack, image.Pt(x, y))
		}
	}
	for x := 0; x < bm.w; x++ {
		push(x, 0)
		push(x, bm.h-1)
	}
	for y := 0; y < bm.h; y++ {
		push(0, y)
		push(bm.w-1, y)
	}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, d := range neighbours4 {
			q := p.Add(d)
			if q.X < 0 || q.Y < 0 || q.X >= bm.w || q.Y >= bm.h {
				continue
			}
			push(q.X, q.Y)
		}
	}
	return seen
}

// traceContour は Moore 近傍追跡で成分の外周を時計回りにたどります。
// 開始画素に戻り、次の画素が2番目の画素と一致した時点で終了します。
func (bm *bitmap) traceContour(c component) []image.Point {
	in := func(p image.Point) bool {
		return p.X >= 0 && p.Y >= 0 && p.X < bm.w && p.Y < bm.h && bm.labels[p.Y*bm.w+p.X] == c.label
	}

	start := c.first
	contour := []image.Point{start}
	p, back := start, 0 // 西隣は成分外
	var second image.Point
	hasSecond := false
	limit := 4*c.size + 8

	for step := 0; step < limit; step++ {
		n, nb, ok := mooreNext(p, back, in)
		if !ok {
			break
		}
		if !hasSecond {
			second, hasSecond = n, true
		} else if p == start && n == second {
			contour = contour[:len(contour)-1]
			break
		}
		p, back = n, nb
		contour = append(contour, p)
	}
	return contour
}

// mooreNext は p の周囲を back の次から時計回りに調べ、最初の前景画素と新しい戻り方向を返します。
func mooreNext(p image.Point, back int, in func(image.Point) bool) (image.Point, int, bool) {
	for i := 1; i <= 8; i++ {
		d := (back + i) % 8
		n := p.Add(moore[d])
		if !in(n) {
			continue
		}
		b := p.Add(moore[(back+i-1)%8])
		return n, directionOf(b.Sub(n)), true
	}
	return p, back, false
}

func directionOf(delta image.Point) int {
	for i, d := range moore {
		if d == delta {
			return i
		}
	}
	return 0
}
