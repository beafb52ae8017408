package domain

// Margins はページ外周の余白です。
type Margins struct {
	Top    int `json:"top"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
	Right  int `json:"right"`
}

// Placement はページ上の1パネル分の配置です。枠線はこの矩形の外側に描かれます。
type Placement struct {
	PanelNumber int `json:"panel_number"`
	X           int `json:"x"`
	Y           int `json:"y"`
	Width       int `json:"width"`
	Height      int `json:"height"`
}

// Rect は配置を矩形として返します。
func (p Placement) Rect() Rect {
	return Rect{X: p.X, Y: p.Y, Width: p.Width, Height: p.Height}
}

// PageLayout は1ページ分のコマ割りです。
type PageLayout struct {
	PageNumber   int         `json:"page_number"`
	Name         string      `json:"name"`
	CanvasWidth  int         `json:"canvas_width"`
	CanvasHeight int         `json:"canvas_height"`
	Margins      Margins     `json:"margins"`
	Gutter       int         `json:"gutter"`
	Border       int         `json:"border"`
	Placements   []Placement `json:"placements"`
}

// ContentRect はキャンバスからマージンを除いた描画可能領域です。
func (l PageLayout) ContentRect() Rect {
	return Rect{
		X:      l.Margins.Left,
		Y:      l.Margins.Top,
		Width:  l.CanvasWidth - l.Margins.Left - l.Margins.Right,
		Height: l.CanvasHeight - l.Margins.Top - l.Margins.Bottom,
	}
}
