package prompts

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"
)

const (
	// ModeOutline はあらすじからページとパネルの台本を起こすプロンプトです。
	ModeOutline = "outline"
	// ModeRewrite はパネルの説明文を画像生成向けに書き直すプロンプトです。
	ModeRewrite = "rewrite"
)

var (
	//go:embed outline.md
	outlinePrompt string
	//go:embed rewrite.md
	rewritePrompt string

	allTextTemplates = map[string]string{
		ModeOutline: outlinePrompt,
		ModeRewrite: rewritePrompt,
	}
)

// ScenarioData はテキスト生成プロンプトのテンプレートに渡すデータ構造です。
type ScenarioData struct {
	Title            string
	Synopsis         string
	Style            string
	MaxPages         int
	MaxPanelsPerPage int

	PanelType   string
	Description string
	Characters  []CharacterData
}

// ScenarioPrompt は、台本生成用のプロンプトを構築する契約です。
type ScenarioPrompt interface {
	Build(mode string, data ScenarioData) (string, error)
}

// TextPromptBuilder はテキスト生成モデル向けのプロンプトをモードごとに管理します。
type TextPromptBuilder struct {
	templates map[string]*template.Template
}

// NewTextPromptBuilder は埋め込みテンプレートを解析して TextPromptBuilder を初期化します。
func NewTextPromptBuilder() (*TextPromptBuilder, error) {
	parsed := make(map[string]*template.Template, len(allTextTemplates))
	for mode, content := range allTextTemplates {
		if content == "" {
			return nil, fmt.Errorf("プロンプトテンプレート '%s' (go:embed) の読み込みに失敗しました: 内容が空です", mode)
		}
		tmpl, err := template.New(mode).Parse(content)
		if err != nil {
			return nil, fmt.Errorf("プロンプト '%s' の解析に失敗: %w", mode, err)
		}
		parsed[mode] = tmpl
	}
	return &TextPromptBuilder{templates: parsed}, nil
}

// Build は、要求されたモードに応じて適切なテンプレートを実行します。
func (b *TextPromptBuilder) Build(mode string, data ScenarioData) (string, error) {
	tmpl, ok := b.templates[mode]
	if !ok {
		return "", fmt.Errorf("不明なモードです: '%s'", mode)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("プロンプトテンプレートの実行に失敗しました: %w", err)
	}
	return sb.String(), nil
}
