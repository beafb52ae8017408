package generator

import (
	"time"

	"github.com/shouni/go-manga-press/pkg/domain"

	"github.com/patrickmn/go-cache"
)

// ContextCache は、各パネルの生成時に渡した直前のコンテキストをパネルIDごとに保持します。
// 再生成で同じ入力を再現するための高速な経路です。期限切れや再起動後はパネルに保存した値を使います。
type ContextCache struct {
	items *cache.Cache
	ttl   time.Duration
}

// NewContextCache は ttl で失効する ContextCache を生成します。
func NewContextCache(ttl time.Duration) *ContextCache {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &ContextCache{
		items: cache.New(ttl, 2*time.Hour),
		ttl:   ttl,
	}
}

// Store はパネルの直前コンテキストを保存します。
func (c *ContextCache) Store(panelID string, preceding domain.ConsistencyContext) {
	c.items.Set(panelID, preceding, c.ttl)
}

// Preceding はパネルの直前コンテキストを返します。
func (c *ContextCache) Preceding(panelID string) (domain.ConsistencyContext, bool) {
	v, ok := c.items.Get(panelID)
	if !ok {
		return domain.ConsistencyContext{}, false
	}
	cc, ok := v.(domain.ConsistencyContext)
	return cc, ok
}

// Forget はパネルのコンテキストを破棄します。
func (c *ContextCache) Forget(panelID string) {
	c.items.Delete(panelID)
}

// pageRun は1回のページ生成の間だけ存在する作業領域です。
// 生きているコンテキストはページごとに1つだけで、他のページと共有しません。
type pageRun struct {
	jobID      string
	pageNumber int
	live       domain.ConsistencyContext
	panels     []domain.GeneratedPanel
}

func newPageRun(jobID string, pageNumber, capacity int) *pageRun {
	return &pageRun{
		jobID:      jobID,
		pageNumber: pageNumber,
		panels:     make([]domain.GeneratedPanel, 0, capacity),
	}
}

// advance は生成済みパネルを記録し、その応答のコンテキストを次のパネルへ引き継ぎます。
func (r *pageRun) advance(panel domain.GeneratedPanel) {
	r.panels = append(r.panels, panel)
	r.live = panel.Context
}

func (r *pageRun) result(failedPanel int) *PageResult {
	return &PageResult{
		PageNumber:   r.pageNumber,
		Panels:       r.panels,
		FinalContext: r.live,
		FailedPanel:  failedPanel,
	}
}
