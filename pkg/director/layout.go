package director

import "image"

// LayoutManager は効果音の配置候補や余白のルールを管理します。
type LayoutManager struct {
	DefaultMargin float64 // 領域の幅・高さに対する余白の比率
}

func NewLayoutManager() *LayoutManager {
	return &LayoutManager{
		DefaultMargin: 0.1,
	}
}

// Anchors はパネル内で効果音を置く候補位置（左上座標）を優先順に返します。
// 偶数番目は左下から右上へ、奇数番目は右上から左下へ、右から左へ流れるように対角に配置します。
func (l *LayoutManager) Anchors(index int, area image.Rectangle, size image.Point) []image.Point {
	mx := int(float64(area.Dx()) * l.DefaultMargin)
	my := int(float64(area.Dy()) * l.DefaultMargin)

	left := area.Min.X + mx
	right := area.Max.X - mx - size.X
	top := area.Min.Y + my
	bottom := area.Max.Y - my - size.Y
	midX := area.Min.X + (area.Dx()-size.X)/2
	midY := area.Min.Y + (area.Dy()-size.Y)/2

	var anchors []image.Point
	if index%2 == 0 {
		anchors = []image.Point{{left, bottom}, {right, top}, {midX, bottom}, {left, midY}, {right, bottom}, {left, top}}
	} else {
		anchors = []image.Point{{right, top}, {left, bottom}, {midX, top}, {right, midY}, {left, top}, {right, bottom}}
	}

	valid := anchors[:0]
	for _, a := range anchors {
		if a.X >= area.Min.X && a.Y >= area.Min.Y && a.X+size.X <= area.Max.X && a.Y+size.Y <= area.Max.Y {
			valid = append(valid, a)
		}
	}
	return valid
}
