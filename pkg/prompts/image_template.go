package prompts

import "github.com/shouni/go-manga-press/pkg/domain"

const (
	// MangaPanelTag はすべてのパネルプロンプトに付与する基本タグです。
	MangaPanelTag = "manga panel"

	// NegativePanelPrompt は設定で上書きされない場合のネガティブプロンプトです。
	NegativePanelPrompt = "bad anatomy, blurry, low quality"

	// enhanceTemplate は拡張説明文のテンプレートです。
	enhanceTemplate = `{{.Description}}, {{.Composition}}{{range .Characters}}, {{.Name}} ({{.Cues}}){{end}}`
)

// compositionPhrases はパネル種別ごとの構図指示です。
var compositionPhrases = map[domain.PanelType]string{
	domain.PanelTypeEstablishingShot: "wide establishing shot, full environment visible, characters small in frame",
	domain.PanelTypeCloseUp:          "close-up shot, detailed facial expression, shallow depth of field",
	domain.PanelTypeAction:           "dynamic action shot, speed lines, dramatic perspective",
	domain.PanelTypeDialogue:         "medium shot, characters in conversation, open space for speech bubbles",
}

// styleTags は画風ジャンルごとの補助タグです。
var styleTags = map[domain.MangaStyle]string{
	domain.StyleShonen: "bold inking, dynamic motion",
	domain.StyleShojo:  "delicate linework, sparkling screentones, soft expressions",
	domain.StyleSeinen: "realistic proportions, detailed hatching, muted tones",
	domain.StyleJosei:  "elegant linework, mature character designs",
	domain.StyleKodomo: "simple rounded shapes, cheerful expressions",
}
