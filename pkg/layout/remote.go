package layout

import (
	"context"
	"fmt"

	"github.com/shouni/go-manga-press/pkg/backend"
	"github.com/shouni/go-manga-press/pkg/domain"
)

// PageBackend はページ合成を提供するバックエンドの契約です。
type PageBackend interface {
	ComposePage(ctx context.Context, req backend.ComposeRequest) (*backend.ComposeResponse, error)
}

// RemoteComposer は割り付けだけをローカルで決め、描画をバックエンドの compose_page に委ねます。
// 合成はコンテキストに依存しないため、一貫性トークンは送りません。
type RemoteComposer struct {
	geo     Geometry
	backend PageBackend
}

// NewRemoteComposer は RemoteComposer を初期化します。
func NewRemoteComposer(geo Geometry, b PageBackend) *RemoteComposer {
	return &RemoteComposer{geo: geo, backend: b}
}

// Compose はバックエンドで合成し、返されたレイアウトをローカルと同じ規則で検証します。
func (c *RemoteComposer) Compose(ctx context.Context, pageNumber int, layoutName string, panels []PanelImage) (*ComposedPage, error) {
	l, err := c.geo.Plan(pageNumber, layoutName, len(panels))
	if err != nil {
		return nil, fmt.Errorf("ページ %d: %w", pageNumber, err)
	}

	req := backend.ComposeRequest{
		Panels:   make([][]byte, len(panels)),
		Layout:   l,
		PageSize: backend.PageSize{Width: l.CanvasWidth, Height: l.CanvasHeight},
		Margins:  l.Margins,
		Gutter:   l.Gutter,
	}
	for i, p := range panels {
		req.Panels[i] = p.Image
		l.Placements[i].PanelNumber = p.PanelNumber
	}

	resp, err := c.backend.ComposePage(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("ページ %d の合成に失敗しました: %w", pageNumber, err)
	}

	got := resp.Layout
	if len(got.Placements) != len(panels) {
		return nil, &domain.BackendError{
			Op:      backend.PathComposePage,
			Message: fmt.Sprintf("配置数 %d がパネル数 %d と一致しません", len(got.Placements), len(panels)),
		}
	}
	if got.CanvasWidth == 0 && got.CanvasHeight == 0 {
		got.CanvasWidth, got.CanvasHeight = l.CanvasWidth, l.CanvasHeight
		got.Margins, got.Border = l.Margins, l.Border
	}
	if err := Validate(got, c.geo.MinCellSize); err != nil {
		return nil, fmt.Errorf("ページ %d のバックエンドのレイアウトが不正です: %w", pageNumber, err)
	}
	got.PageNumber = pageNumber
	if got.Name == "" {
		got.Name = l.Name
	}
	return &ComposedPage{Layout: got, Image: resp.Image}, nil
}
