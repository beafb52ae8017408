package parser

import "regexp"

var (
	// TitleRegex は "# タイトル" 形式のタイトル行をキャプチャします。
	TitleRegex = regexp.MustCompile(`^#\s+(.+)`)

	// SynopsisRegex は "> あらすじ" 形式の行をキャプチャします。
	SynopsisRegex = regexp.MustCompile(`^>\s*(.+)`)

	// PageRegex は "## Page 1 [layout]" 形式のページ区切り行を特定します。
	PageRegex = regexp.MustCompile(`(?i)^##\s+Page\s*(\d+)?\s*(?:\[([^\]]+)\])?\s*$`)

	// PanelRegex は "### Panel 1 [type]" 形式のパネル区切り行を特定します。
	PanelRegex = regexp.MustCompile(`(?i)^###\s+Panel\s*(\d+)?\s*(?:\[([^\]]+)\])?\s*$`)

	// FieldRegex は "- key: value" 形式のフィールド行をキャプチャします。
	FieldRegex = regexp.MustCompile(`^\s*-\s*([a-zA-Z_]+):\s*(.+)`)

	// bracketSuffixRegex は "テキスト [属性]" 形式の末尾の属性を分離します。
	bracketSuffixRegex = regexp.MustCompile(`^(.*?)\s*\[([^\]]+)\]\s*$`)
)
