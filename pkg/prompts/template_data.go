package prompts

// TemplateData は拡張説明文のテンプレートに渡すデータ構造です。
type TemplateData struct {
	Description string
	Composition string
	Characters  []CharacterData
}

// CharacterData はパネルに登場するキャラクターの外見情報です。
type CharacterData struct {
	Name string
	Cues string
}
