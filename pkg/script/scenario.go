package script

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/shouni/go-manga-press/pkg/domain"
	"github.com/shouni/go-manga-press/pkg/prompts"
)

var jsonBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*\\S)\\s*```")

// TextModel はテキスト生成モデルへの窓口です。
type TextModel interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Outliner はあらすじだけの台本から、モデルにページとパネルを起こさせます。
type Outliner struct {
	model  TextModel
	prompt prompts.ScenarioPrompt
	limits Limits
}

// NewOutliner は Outliner を初期化します。
func NewOutliner(model TextModel, prompt prompts.ScenarioPrompt, limits Limits) *Outliner {
	return &Outliner{model: model, prompt: prompt, limits: limits}
}

// Outline はあらすじからページ群を生成します。上限を超えたページとパネルは切り捨てます。
func (o *Outliner) Outline(ctx context.Context, chapter domain.Chapter, chars domain.CharactersMap) ([]domain.PageScript, error) {
	if strings.TrimSpace(chapter.Synopsis) == "" {
		return nil, fmt.Errorf("%w: あらすじがありません", domain.ErrInvalidScript)
	}

	data := prompts.ScenarioData{
		Title:            chapter.Title,
		Synopsis:         strings.TrimSpace(chapter.Synopsis),
		Style:            chapter.Style,
		MaxPages:         o.limits.MaxPages,
		MaxPanelsPerPage: o.limits.MaxPanelsPerPage,
		Characters:       characterData(chars),
	}
	prompt, err := o.prompt.Build(prompts.ModeOutline, data)
	if err != nil {
		return nil, fmt.Errorf("台本生成プロンプトの作成に失敗しました: %w", err)
	}

	slog.InfoContext(ctx, "Generating outline from synopsis", "title", chapter.Title)
	raw, err := o.model.GenerateText(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("台本の生成に失敗しました: %w", err)
	}

	var reply struct {
		Pages []domain.PageScript `json:"pages"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &reply); err != nil {
		return nil, fmt.Errorf("%w: モデルの応答に含まれるJSONの解析に失敗しました (応答抜粋: %q): %v",
			domain.ErrInvalidScript, truncateString(raw, 200), err)
	}
	if len(reply.Pages) == 0 {
		return nil, fmt.Errorf("%w: モデルの応答にページがありません", domain.ErrInvalidScript)
	}

	pages := reply.Pages
	if o.limits.MaxPages > 0 && len(pages) > o.limits.MaxPages {
		slog.WarnContext(ctx, "Outline exceeds page limit, truncating", "pages", len(pages), "limit", o.limits.MaxPages)
		pages = pages[:o.limits.MaxPages]
	}
	for i := range pages {
		if o.limits.MaxPanelsPerPage > 0 && len(pages[i].Panels) > o.limits.MaxPanelsPerPage {
			pages[i].Panels = pages[i].Panels[:o.limits.MaxPanelsPerPage]
		}
	}
	return pages, nil
}

// DescriptionRewriter はパネルの説明文をモデルで画像生成向けに書き直します。
type DescriptionRewriter struct {
	model  TextModel
	prompt prompts.ScenarioPrompt
}

// NewDescriptionRewriter は DescriptionRewriter を初期化します。
func NewDescriptionRewriter(model TextModel, prompt prompts.ScenarioPrompt) *DescriptionRewriter {
	return &DescriptionRewriter{model: model, prompt: prompt}
}

// Enhance は書き直した説明文を返します。base はテンプレートで拡張済みの説明文です。
func (r *DescriptionRewriter) Enhance(ctx context.Context, panel domain.PanelDescriptor, base string, chars domain.CharactersMap) (string, error) {
	prompt, err := r.prompt.Build(prompts.ModeRewrite, prompts.ScenarioData{
		PanelType:   string(panel.Type),
		Description: base,
		Characters:  speakerData(panel, chars),
	})
	if err != nil {
		return "", err
	}
	raw, err := r.model.GenerateText(ctx, prompt)
	if err != nil {
		return "", err
	}
	text := strings.Join(strings.Fields(strings.Trim(strings.TrimSpace(raw), "`\"")), " ")
	if text == "" {
		return "", fmt.Errorf("モデルの応答が空です")
	}
	return text, nil
}

// extractJSON はコードブロック、最も外側の波括弧、応答全体の順に JSON 部分を取り出します。
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if m := jsonBlockRegex.FindStringSubmatch(raw); len(m) > 1 {
		return m[1]
	}
	first := strings.Index(raw, "{")
	last := strings.LastIndex(raw, "}")
	if first != -1 && last > first {
		return raw[first : last+1]
	}
	return raw
}

func characterData(chars domain.CharactersMap) []prompts.CharacterData {
	var out []prompts.CharacterData
	for _, c := range chars {
		out = append(out, prompts.CharacterData{Name: c.Name, Cues: c.VisualDescription()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func speakerData(panel domain.PanelDescriptor, chars domain.CharactersMap) []prompts.CharacterData {
	var out []prompts.CharacterData
	for _, name := range panel.Speakers() {
		if c := chars.FindCharacter(name); c != nil && len(c.VisualCues) > 0 {
			out = append(out, prompts.CharacterData{Name: c.Name, Cues: c.VisualDescription()})
		}
	}
	return out
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
