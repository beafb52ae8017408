package domain

// StyleParams はパネル生成に共通で適用する画風と生成パラメータです。
type StyleParams struct {
	Style           MangaStyle
	AdditionalTags  string
	NegativePrompt  string
	Width           int
	Height          int
	Steps           int
	CFGScale        float64
	Sampler         string
	AdapterStrength float64
}
