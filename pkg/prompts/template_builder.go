package prompts

import (
	"fmt"
	"strings"
	"text/template"
)

// TemplateBuilder はテンプレート文字列から説明文を組み立てます。
type TemplateBuilder struct {
	tmpl *template.Template
}

// NewTemplateBuilder はテンプレートを解析して TemplateBuilder を初期化します。
func NewTemplateBuilder(content string) (*TemplateBuilder, error) {
	if content == "" {
		return nil, fmt.Errorf("プロンプトテンプレートが空です")
	}
	tmpl, err := template.New("enhance").Parse(content)
	if err != nil {
		return nil, fmt.Errorf("プロンプトテンプレートの解析に失敗しました: %w", err)
	}
	return &TemplateBuilder{tmpl: tmpl}, nil
}

// Build はテンプレートを実行し、前後の空白を除いた文字列を返します。
func (b *TemplateBuilder) Build(data TemplateData) (string, error) {
	var sb strings.Builder
	if err := b.tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("プロンプトテンプレートの実行に失敗しました: %w", err)
	}
	return strings.TrimSpace(sb.String()), nil
}
