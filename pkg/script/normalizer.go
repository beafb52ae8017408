package script

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/shouni/go-manga-press/pkg/domain"
	"github.com/shouni/go-manga-press/pkg/prompts"
)

// Limits はチャプターに含められるページ数・パネル数の上限です。
type Limits struct {
	MaxPages         int
	MaxPanelsPerPage int
}

// Enhancer はテンプレートで拡張した説明文をさらに書き直します。
type Enhancer interface {
	Enhance(ctx context.Context, panel domain.PanelDescriptor, base string, chars domain.CharactersMap) (string, error)
}

// Normalizer は生の台本を、生成順に並んだパネルディスクリプタへ正規化します。
type Normalizer struct {
	prompt   prompts.PanelPrompt
	limits   Limits
	enhancer Enhancer
}

// NewNormalizer は Normalizer を初期化します。
func NewNormalizer(prompt prompts.PanelPrompt, limits Limits) *Normalizer {
	return &Normalizer{prompt: prompt, limits: limits}
}

// WithEnhancer は説明文の書き直しを有効にします。書き直しに失敗したパネルはテンプレートの説明文を使います。
func (n *Normalizer) WithEnhancer(e Enhancer) *Normalizer {
	n.enhancer = e
	return n
}

// Normalize はページとパネルを番号順に整列し、検証と説明文の拡張を行ったページ群を返します。
// 重複番号はエラー、欠番は1からの連番に詰め直します。入力の chapter は変更しません。
func (n *Normalizer) Normalize(ctx context.Context, chapter domain.Chapter, chars domain.CharactersMap) ([]domain.PageScript, error) {
	if len(chapter.Pages) == 0 {
		return nil, fmt.Errorf("%w: ページがありません", domain.ErrInvalidScript)
	}
	if n.limits.MaxPages > 0 && len(chapter.Pages) > n.limits.MaxPages {
		return nil, fmt.Errorf("%w: ページ数 %d が上限 %d を超えています", domain.ErrInvalidScript, len(chapter.Pages), n.limits.MaxPages)
	}

	pages := make([]domain.PageScript, len(chapter.Pages))
	copy(pages, chapter.Pages)
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].PageNumber < pages[j].PageNumber })
	if err := checkDuplicates(pages, func(p domain.PageScript) int { return p.PageNumber }, "ページ"); err != nil {
		return nil, err
	}

	for i := range pages {
		page, err := n.normalizePage(ctx, pages[i], chars)
		if err != nil {
			return nil, err
		}
		if page.PageNumber != i+1 {
			slog.WarnContext(ctx, "ページ番号を詰め直しました", "from", page.PageNumber, "to", i+1)
			page.PageNumber = i + 1
		}
		pages[i] = page
	}
	return pages, nil
}

func (n *Normalizer) normalizePage(ctx context.Context, page domain.PageScript, chars domain.CharactersMap) (domain.PageScript, error) {
	if len(page.Panels) == 0 {
		return page, fmt.Errorf("%w: ページ %d にパネルがありません", domain.ErrInvalidScript, page.PageNumber)
	}
	if n.limits.MaxPanelsPerPage > 0 && len(page.Panels) > n.limits.MaxPanelsPerPage {
		return page, fmt.Errorf("%w: ページ %d のパネル数 %d が上限 %d を超えています",
			domain.ErrInvalidScript, page.PageNumber, len(page.Panels), n.limits.MaxPanelsPerPage)
	}

	panels := make([]domain.PanelDescriptor, len(page.Panels))
	copy(panels, page.Panels)
	sort.SliceStable(panels, func(i, j int) bool { return panels[i].PanelNumber < panels[j].PanelNumber })
	if err := checkDuplicates(panels, func(p domain.PanelDescriptor) int { return p.PanelNumber }, fmt.Sprintf("ページ %d のパネル", page.PageNumber)); err != nil {
		return page, err
	}

	for i := range panels {
		panel, err := n.normalizePanel(ctx, panels[i], chars)
		if err != nil {
			return page, fmt.Errorf("ページ %d: %w", page.PageNumber, err)
		}
		if panel.PanelNumber != i+1 {
			slog.WarnContext(ctx, "パネル番号を詰め直しました", "page", page.PageNumber, "from", panel.PanelNumber, "to", i+1)
			panel.PanelNumber = i + 1
		}
		panels[i] = panel
	}

	page.Panels = panels
	page.Layout = strings.TrimSpace(page.Layout)
	return page, nil
}

func (n *Normalizer) normalizePanel(ctx context.Context, panel domain.PanelDescriptor, chars domain.CharactersMap) (domain.PanelDescriptor, error) {
	panel.Description = strings.TrimSpace(panel.Description)

	var lines []domain.DialogueLine
	for _, d := range panel.Dialogue {
		d.Character = strings.TrimSpace(d.Character)
		d.Text = strings.TrimSpace(d.Text)
		if d.Text == "" {
			continue
		}
		lines = append(lines, d)
	}
	panel.Dialogue = lines

	var effects []domain.SoundEffect
	for _, s := range panel.SoundEffects {
		s.Text = strings.TrimSpace(s.Text)
		if s.Text != "" {
			effects = append(effects, s)
		}
	}
	panel.SoundEffects = effects

	if panel.Type == "" {
		panel.Type = InferPanelType(panel)
	} else {
		pt, err := domain.ParsePanelType(string(panel.Type))
		if err != nil {
			return panel, err
		}
		panel.Type = pt
	}

	if panel.Description == "" && len(panel.Dialogue) == 0 {
		return panel, fmt.Errorf("%w: パネル %d に説明もセリフもありません", domain.ErrInvalidScript, panel.PanelNumber)
	}

	enhanced, err := n.prompt.EnhanceDescription(panel, chars)
	if err != nil {
		return panel, err
	}
	if n.enhancer != nil {
		rewritten, err := n.enhancer.Enhance(ctx, panel, enhanced, chars)
		if err != nil {
			slog.WarnContext(ctx, "説明文の書き直しに失敗したためテンプレートの説明文を使います", "panel", panel.PanelNumber, "error", err)
		} else {
			enhanced = rewritten
		}
	}
	panel.EnhancedDescription = enhanced
	return panel, nil
}

// InferPanelType は種別が省略されたパネルの種別を推定します。
func InferPanelType(panel domain.PanelDescriptor) domain.PanelType {
	if len(panel.Dialogue) > 0 {
		return domain.PanelTypeDialogue
	}
	return domain.PanelTypeAction
}

func checkDuplicates[T any](items []T, key func(T) int, label string) error {
	for i := 1; i < len(items); i++ {
		if key(items[i]) == key(items[i-1]) {
			return fmt.Errorf("%w: %s番号 %d が重複しています", domain.ErrInvalidScript, label, key(items[i]))
		}
	}
	return nil
}
