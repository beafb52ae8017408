package prompts

import (
	"fmt"
	"strings"

	"github.com/shouni/go-manga-press/pkg/domain"
)

// ImagePromptBuilder は、キャラクター情報と画風を考慮してパネル用プロンプトを構築します。
type ImagePromptBuilder struct {
	enhancer *TemplateBuilder
}

// NewImagePromptBuilder は新しい ImagePromptBuilder を生成します。
func NewImagePromptBuilder() (*ImagePromptBuilder, error) {
	tb, err := NewTemplateBuilder(enhanceTemplate)
	if err != nil {
		return nil, err
	}
	return &ImagePromptBuilder{enhancer: tb}, nil
}

// EnhanceDescription は説明文に構図指示と登場キャラクターの外見を付け加えます。
func (pb *ImagePromptBuilder) EnhanceDescription(panel domain.PanelDescriptor, chars domain.CharactersMap) (string, error) {
	data := TemplateData{
		Description: strings.TrimSpace(panel.Description),
		Composition: compositionPhrases[panel.Type],
	}
	for _, name := range panel.Speakers() {
		char := chars.FindCharacter(name)
		if char == nil || len(char.VisualCues) == 0 {
			continue
		}
		data.Characters = append(data.Characters, CharacterData{
			Name: char.Name,
			Cues: char.VisualDescription(),
		})
	}

	enhanced, err := pb.enhancer.Build(data)
	if err != nil {
		return "", fmt.Errorf("パネル %d の説明文の拡張に失敗しました: %w", panel.PanelNumber, err)
	}
	return strings.Trim(enhanced, ", "), nil
}

// BuildPanel は「拡張説明, manga panel, <画風> style, 補助タグ」の順にプロンプトを組み立てます。
func (pb *ImagePromptBuilder) BuildPanel(panel domain.PanelDescriptor, style domain.StyleParams) (string, string) {
	parts := []string{panel.PromptDescription(), MangaPanelTag}
	if style.Style != "" {
		parts = append(parts, fmt.Sprintf("%s style", style.Style))
		if tags, ok := styleTags[style.Style]; ok {
			parts = append(parts, tags)
		}
	}
	if tags := strings.TrimSpace(style.AdditionalTags); tags != "" {
		parts = append(parts, tags)
	}

	var filtered []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			filtered = append(filtered, p)
		}
	}

	negative := style.NegativePrompt
	if negative == "" {
		negative = NegativePanelPrompt
	}
	return strings.Join(filtered, ", "), negative
}
