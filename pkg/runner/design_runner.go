package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shouni/go-manga-press/pkg/domain"
	"github.com/shouni/go-manga-press/pkg/generator"
)

// MangaDesignRunner は台本に登場するキャラクターのスタイルアダプターを用意します。
type MangaDesignRunner struct {
	resolver *generator.AdapterResolver
}

// NewMangaDesignRunner は依存関係を注入して初期化します。
func NewMangaDesignRunner(resolver *generator.AdapterResolver) *MangaDesignRunner {
	return &MangaDesignRunner{resolver: resolver}
}

// Run は全ページのセリフに登場するキャラクターのアダプターを解決します。
func (dr *MangaDesignRunner) Run(ctx context.Context, chars domain.CharactersMap, pages []domain.PageScript) (generator.AdapterSet, error) {
	start := time.Now()
	names := domain.Chapter{Pages: pages}.UniqueSpeakers()

	set, err := dr.resolver.Prepare(ctx, chars, names)
	if err != nil {
		return nil, fmt.Errorf("キャラクターの準備に失敗しました: %w", err)
	}

	slog.InfoContext(ctx, "Character adapters prepared",
		"speakers", len(names),
		"adapters", len(set),
		"duration", time.Since(start).Round(time.Millisecond))
	return set, nil
}

// ForPanel は1パネルに登場するキャラクターのアダプターだけを解決します。
func (dr *MangaDesignRunner) ForPanel(ctx context.Context, chars domain.CharactersMap, panel domain.PanelDescriptor) (generator.AdapterSet, error) {
	set, err := dr.resolver.Prepare(ctx, chars, panel.Speakers())
	if err != nil {
		return nil, fmt.Errorf("パネル %d のキャラクターの準備に失敗しました: %w", panel.PanelNumber, err)
	}
	return set, nil
}
