package runner

import (
	"fmt"

	"github.com/shouni/go-manga-press/pkg/config"
	"github.com/shouni/go-manga-press/pkg/domain"
)

// StyleFor は設定とチャプターの画風から生成パラメータを組み立てます。チャプターの指定が優先です。
func StyleFor(cfg config.Config, chapterStyle string) (domain.StyleParams, error) {
	name := chapterStyle
	if name == "" {
		name = cfg.Style
	}
	style, err := domain.ParseMangaStyle(name)
	if err != nil {
		return domain.StyleParams{}, err
	}
	return domain.StyleParams{
		Style:           style,
		AdditionalTags:  cfg.AdditionalTags,
		NegativePrompt:  cfg.NegativePrompt,
		Width:           cfg.PanelWidth,
		Height:          cfg.PanelHeight,
		Steps:           cfg.Steps,
		CFGScale:        cfg.CFGScale,
		Sampler:         cfg.Sampler,
		AdapterStrength: cfg.AdapterStrength,
	}, nil
}

// PageSeed はチャプターとページ番号から決まるページの基準シードを返します。
// 同じ台本を再実行すると同じシードになります。
func PageSeed(title string, pageNumber int) int64 {
	return int64(domain.GetSeedFromName(fmt.Sprintf("%s#%d", title, pageNumber)))
}
