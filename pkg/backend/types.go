package backend

import (
	"encoding/json"

	"github.com/shouni/go-manga-press/pkg/domain"
)

// エンドポイントのパスです。
const (
	PathStoryGenerate      = "/api/story_generate"
	PathComposePage        = "/api/compose_page"
	PathCharacterReference = "/api/character_reference"
)

// ActiveAdapter はパネル生成時に適用するスタイルアダプターです。
type ActiveAdapter struct {
	Reference string  `json:"reference"`
	Strength  float64 `json:"strength"`
}

// PanelRequest はパネル生成リクエストです。
type PanelRequest struct {
	Prompt          string           `json:"prompt"`
	NegativePrompt  string           `json:"negative_prompt"`
	Width           int              `json:"width"`
	Height          int              `json:"height"`
	Steps           int              `json:"steps"`
	CFGScale        float64          `json:"cfg_scale"`
	Sampler         string           `json:"sampler"`
	Seed            int64            `json:"seed"`
	ActiveAdapters  []ActiveAdapter  `json:"active_adapters"`
	PreviousContext json.RawMessage  `json:"previous_context"`
	PanelType       domain.PanelType `json:"panel_type"`
}

// panelReply はバックエンドの生の応答です。context と embeddings のどちらのキーも受け付けます。
type panelReply struct {
	Image      string          `json:"image"`
	Context    json.RawMessage `json:"context"`
	Embeddings json.RawMessage `json:"embeddings"`
	Seed       *int64          `json:"seed"`
	Error      string          `json:"error"`
}

// PanelResponse は検証済みのパネル生成結果です。
type PanelResponse struct {
	Image   []byte
	Context domain.ConsistencyContext
	Seed    int64
}

// PageSize はページのピクセルサイズです。
type PageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ComposeRequest はページ合成リクエストです。合成はコンテキストに依存しません。
type ComposeRequest struct {
	Panels   [][]byte          `json:"-"`
	Layout   domain.PageLayout `json:"layout"`
	PageSize PageSize          `json:"page_size"`
	Margins  domain.Margins    `json:"margins"`
	Gutter   int               `json:"gutter"`
}

type composeWire struct {
	Panels   []string          `json:"panels"`
	Layout   domain.PageLayout `json:"layout"`
	PageSize PageSize          `json:"page_size"`
	Margins  domain.Margins    `json:"margins"`
	Gutter   int               `json:"gutter"`
}

type composeReply struct {
	ComposedImage string             `json:"composed_image"`
	Layout        *domain.PageLayout `json:"layout"`
	Error         string             `json:"error"`
}

// ComposeResponse は検証済みのページ合成結果です。
type ComposeResponse struct {
	Image  []byte
	Layout domain.PageLayout
}

// CharacterReferenceRequest はキャラクター参照（スタイルアダプター）の作成リクエストです。
type CharacterReferenceRequest struct {
	Name              string `json:"name"`
	VisualDescription string `json:"visual_description"`
	Seed              int64  `json:"seed"`
}

type characterReferenceReply struct {
	Reference string `json:"reference"`
	Error     string `json:"error"`
}
