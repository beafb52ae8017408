package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/shouni/go-manga-press/pkg/domain"
	"github.com/shouni/go-manga-press/pkg/generator"
	"github.com/shouni/go-manga-press/pkg/prompts"
)

// PanelJob は1パネルの再生成の入力です。
type PanelJob struct {
	Current    domain.GeneratedPanel
	Descriptor domain.PanelDescriptor // 変更適用後
	Characters domain.CharactersMap
	Adapters   generator.AdapterSet
	Style      domain.StyleParams
	Seed       *int64
}

// MangaPanelRunner はパネルを1枚だけ作り直し、写植まで行います。
type MangaPanelRunner struct {
	pages  *MangaPageRunner
	prompt prompts.PanelPrompt
}

// NewMangaPanelRunner は MangaPanelRunner を初期化します。
func NewMangaPanelRunner(pages *MangaPageRunner, prompt prompts.PanelPrompt) *MangaPanelRunner {
	return &MangaPanelRunner{pages: pages, prompt: prompt}
}

// Run は保存済みの直前コンテキストでパネルを再生成し、写植したパネルを返します。
// 説明文が変更された場合は拡張説明を作り直します。
func (r *MangaPanelRunner) Run(ctx context.Context, job PanelJob) (*domain.GeneratedPanel, error) {
	desc := cleanDescriptor(job.Descriptor)
	if desc.EnhancedDescription == "" && r.prompt != nil {
		enhanced, err := r.prompt.EnhanceDescription(desc, job.Characters)
		if err != nil {
			return nil, err
		}
		desc.EnhancedDescription = enhanced
	}

	regenerated, err := r.pages.sequencer.RegeneratePanel(ctx, generator.RegenerateRequest{
		Current:    job.Current,
		Descriptor: desc,
		Adapters:   job.Adapters,
		Style:      job.Style,
		Seed:       job.Seed,
	})
	if err != nil {
		return nil, err
	}

	lettered, err := r.pages.Letter(ctx, *regenerated)
	if err != nil {
		return nil, fmt.Errorf("再生成したパネルの写植に失敗しました: %w", err)
	}
	return &lettered, nil
}

// cleanDescriptor は変更で渡されたセリフの前後の空白を除き、空のセリフを捨てます。
func cleanDescriptor(d domain.PanelDescriptor) domain.PanelDescriptor {
	d.Description = strings.TrimSpace(d.Description)
	lines := make([]domain.DialogueLine, 0, len(d.Dialogue))
	for _, l := range d.Dialogue {
		l.Character = strings.TrimSpace(l.Character)
		l.Text = strings.TrimSpace(l.Text)
		if l.Text == "" {
			continue
		}
		lines = append(lines, l)
	}
	d.Dialogue = lines
	return d
}
