package layout

import (
	"fmt"
	"math"
	"strings"

	"github.com/shouni/go-manga-press/pkg/domain"
)

// レイアウト名です。これ以外の名前は最適レイアウトの計算で割り付けます。
const (
	NameStandard = "standard"
	NameYonkoma  = "yonkoma"
	NameComputed = "computed"
)

// standardRows はパネル数ごとの標準グリッドで、各段に並べるパネル数を上の段から並べたものです。
var standardRows = map[int][]int{
	1: {1},
	2: {1, 1},
	3: {1, 2},
	4: {2, 2},
	6: {2, 2, 2},
}

// Geometry はページの寸法と割り付けの規則です。
type Geometry struct {
	CanvasWidth  int
	CanvasHeight int
	Margins      domain.Margins
	Gutter       int
	Border       int
	MinCellSize  int     // 枠線を含むセルの最小の幅・高さ
	PanelAspect  float64 // 生成パネルの幅/高さ。計算レイアウトの歪みの評価に使います
}

func (g Geometry) content() domain.Rect {
	return domain.Rect{
		X:      g.Margins.Left,
		Y:      g.Margins.Top,
		Width:  g.CanvasWidth - g.Margins.Left - g.Margins.Right,
		Height: g.CanvasHeight - g.Margins.Top - g.Margins.Bottom,
	}
}

// IsStandard はパネル数 n に標準グリッドがあるかどうかを返します。
func IsStandard(n int) bool {
	_, ok := standardRows[n]
	return ok
}

// Plan は name と パネル数 n からページのコマ割りを決めます。
// standard は標準グリッドがなければ計算レイアウトになります。収まらない場合は ErrLayoutOverflow です。
func (g Geometry) Plan(pageNumber int, name string, n int) (domain.PageLayout, error) {
	if n <= 0 {
		return domain.PageLayout{}, fmt.Errorf("%w: パネルがありません", domain.ErrLayoutOverflow)
	}

	name = strings.ToLower(strings.TrimSpace(name))
	var rows []int
	switch name {
	case NameYonkoma:
		rows = make([]int, n)
		for i := range rows {
			rows[i] = 1
		}
	case NameStandard, "":
		if r, ok := standardRows[n]; ok {
			rows, name = r, NameStandard
			break
		}
		fallthrough
	default:
		r, err := g.optimalRows(n)
		if err != nil {
			return domain.PageLayout{}, err
		}
		rows, name = r, NameComputed
	}

	l := domain.PageLayout{
		PageNumber:   pageNumber,
		Name:         name,
		CanvasWidth:  g.CanvasWidth,
		CanvasHeight: g.CanvasHeight,
		Margins:      g.Margins,
		Gutter:       g.Gutter,
		Border:       g.Border,
		Placements:   g.place(rows),
	}
	if err := Validate(l, g.MinCellSize); err != nil {
		return domain.PageLayout{}, err
	}
	return l, nil
}

// place は段ごとにセルを割り付けます。段は上から下、段の中は右から左の読み順で番号を振ります。
// 配置はセルを枠線の太さだけ内側に縮めた矩形で、枠線はセル内に収まります。
func (g Geometry) place(rows []int) []domain.Placement {
	c := g.content()
	cellH := (c.Height - (len(rows)-1)*g.Gutter) / len(rows)

	var placements []domain.Placement
	number := 1
	for r, count := range rows {
		cellW := (c.Width - (count-1)*g.Gutter) / count
		y := c.Y + r*(cellH+g.Gutter)
		for i := 0; i < count; i++ {
			x := c.X + c.Width - (i+1)*cellW - i*g.Gutter
			placements = append(placements, domain.Placement{
				PanelNumber: number,
				X:           x + g.Border,
				Y:           y + g.Border,
				Width:       cellW - 2*g.Border,
				Height:      cellH - 2*g.Border,
			})
			number++
		}
	}
	return placements
}

// optimalRows は段数 r=1..n のうち、セルの縦横比とパネルの縦横比の差（対数）の合計が最小になる段組みを選びます。
// 段ごとのパネル数は均等に割り、余りは上の段から1つずつ足します。同点の場合は段数の少ない方を選びます。
func (g Geometry) optimalRows(n int) ([]int, error) {
	c := g.content()
	aspect := g.PanelAspect
	if aspect <= 0 {
		aspect = 1
	}

	var best []int
	bestCost := math.Inf(1)
	for r := 1; r <= n; r++ {
		rows := make([]int, r)
		for i := range rows {
			rows[i] = n / r
			if i < n%r {
				rows[i]++
			}
		}

		cellH := (c.Height - (r-1)*g.Gutter) / r
		cost, ok := 0.0, cellH >= g.MinCellSize && cellH > 2*g.Border
		for _, count := range rows {
			cellW := (c.Width - (count-1)*g.Gutter) / count
			if cellW < g.MinCellSize || cellW <= 2*g.Border {
				ok = false
				break
			}
			cost += float64(count) * math.Abs(math.Log(float64(cellW)/float64(cellH)/aspect))
		}
		if ok && cost < bestCost {
			best, bestCost = rows, cost
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: %d 枚のパネルを最小セルサイズ %d で割り付けられません", domain.ErrLayoutOverflow, n, g.MinCellSize)
	}
	return best, nil
}

// Validate は枠線込みの配置がキャンバスからマージンを除いた領域に収まり、互いに重ならないことを検証します。
func Validate(l domain.PageLayout, minCellSize int) error {
	content := l.ContentRect().Image()
	if content.Empty() {
		return fmt.Errorf("%w: マージンを除いた描画領域がありません", domain.ErrLayoutOverflow)
	}

	cells := make([]domain.Rect, len(l.Placements))
	for i, p := range l.Placements {
		if p.Width <= 0 || p.Height <= 0 {
			return fmt.Errorf("%w: パネル %d の大きさが不正です (%dx%d)", domain.ErrLayoutOverflow, p.PanelNumber, p.Width, p.Height)
		}
		cell := expand(p, l.Border)
		if cell.Width < minCellSize || cell.Height < minCellSize {
			return fmt.Errorf("%w: パネル %d のセル %dx%d が最小サイズ %d 未満です",
				domain.ErrLayoutOverflow, p.PanelNumber, cell.Width, cell.Height, minCellSize)
		}
		if !cell.Image().In(content) {
			return fmt.Errorf("%w: パネル %d が描画領域からはみ出しています", domain.ErrLayoutOverflow, p.PanelNumber)
		}
		cells[i] = cell
	}

	for i := range cells {
		for j := i + 1; j < len(cells); j++ {
			if cells[i].Image().Overlaps(cells[j].Image()) {
				return fmt.Errorf("%w: パネル %d と %d が重なっています",
					domain.ErrLayoutOverflow, l.Placements[i].PanelNumber, l.Placements[j].PanelNumber)
			}
		}
	}
	return nil
}

func expand(p domain.Placement, border int) domain.Rect {
	return domain.Rect{
		X:      p.X - border,
		Y:      p.Y - border,
		Width:  p.Width + 2*border,
		Height: p.Height + 2*border,
	}
}
