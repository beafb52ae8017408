package prompts

import "github.com/shouni/go-manga-press/pkg/domain"

// PanelPrompt は、パネル生成用のプロンプトを構築する契約です。
type PanelPrompt interface {
	// EnhanceDescription は、演出指示と登場キャラクターの外見から生成用の説明文を作ります。
	EnhanceDescription(panel domain.PanelDescriptor, chars domain.CharactersMap) (string, error)
	// BuildPanel は、パネルのプロンプトとネガティブプロンプトを返します。
	BuildPanel(panel domain.PanelDescriptor, style domain.StyleParams) (prompt string, negative string)
}
