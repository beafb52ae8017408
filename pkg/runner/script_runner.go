package runner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shouni/go-manga-press/pkg/domain"
	"github.com/shouni/go-manga-press/pkg/parser"
	"github.com/shouni/go-manga-press/pkg/script"
)

// MangaScriptRunner は台本を正規化し、生成順に並んだページ群にします。
// ページのない台本は、Outliner が設定されていればあらすじから台本を起こします。
type MangaScriptRunner struct {
	normalizer *script.Normalizer
	loader     *parser.Loader
	outliner   *script.Outliner
}

// NewMangaScriptRunner は MangaScriptRunner を初期化します。outliner は nil でも構いません。
func NewMangaScriptRunner(normalizer *script.Normalizer, loader *parser.Loader, outliner *script.Outliner) *MangaScriptRunner {
	return &MangaScriptRunner{normalizer: normalizer, loader: loader, outliner: outliner}
}

// Run はチャプターを正規化します。
func (r *MangaScriptRunner) Run(ctx context.Context, chapter domain.Chapter, chars domain.CharactersMap) ([]domain.PageScript, error) {
	if len(chapter.Pages) == 0 && strings.TrimSpace(chapter.Synopsis) != "" {
		if r.outliner == nil {
			return nil, fmt.Errorf("%w: ページがなく、あらすじから台本を起こすモデルも設定されていません", domain.ErrInvalidScript)
		}
		pages, err := r.outliner.Outline(ctx, chapter, chars)
		if err != nil {
			return nil, fmt.Errorf("あらすじからの台本生成に失敗しました: %w", err)
		}
		chapter.Pages = pages
	}

	pages, err := r.normalizer.Normalize(ctx, chapter, chars)
	if err != nil {
		return nil, fmt.Errorf("台本の正規化に失敗しました: %w", err)
	}

	panels := 0
	for _, p := range pages {
		panels += len(p.Panels)
	}
	slog.InfoContext(ctx, "Script normalized", "title", chapter.Title, "pages", len(pages), "panels", panels)
	return pages, nil
}

// Load はファイルの拡張子に応じたパーサーで台本を読み込みます。gs:// や s3:// の URI も指定できます。
func (r *MangaScriptRunner) Load(ctx context.Context, path string) (*domain.Chapter, error) {
	chapter, err := r.loader.ParseFromPath(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("台本 %s の読み込みに失敗しました: %w", path, err)
	}
	return chapter, nil
}

// LoadCharacters はキャラクター定義を読み込みます。
func (r *MangaScriptRunner) LoadCharacters(ctx context.Context, path string) (domain.CharactersMap, error) {
	return r.loader.LoadCharacters(ctx, path)
}
