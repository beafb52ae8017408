package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// ConsistencyContext はパネル間の一貫性を保つためにバックエンドが返す不透明なトークンです。
// 内容は解釈せず、次のパネルの生成リクエストにそのまま渡します。
type ConsistencyContext struct {
	raw json.RawMessage
}

// NewConsistencyContext はバックエンドの応答から取り出した値を保持します。
func NewConsistencyContext(raw json.RawMessage) ConsistencyContext {
	if len(raw) == 0 {
		return ConsistencyContext{}
	}
	cp := make(json.RawMessage, len(raw))
	copy(cp, raw)
	return ConsistencyContext{raw: cp}
}

// IsEmpty は最初のパネル用の空コンテキストかどうかを返します。
func (c ConsistencyContext) IsEmpty() bool {
	trimmed := bytes.TrimSpace(c.raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// Raw はバックエンドへ送る JSON 値を返します。空の場合は null です。
func (c ConsistencyContext) Raw() json.RawMessage {
	if c.IsEmpty() {
		return json.RawMessage("null")
	}
	return c.raw
}

// Equal は2つのコンテキストがバイト列として一致するかどうかを返します。
func (c ConsistencyContext) Equal(other ConsistencyContext) bool {
	if c.IsEmpty() || other.IsEmpty() {
		return c.IsEmpty() == other.IsEmpty()
	}
	return bytes.Equal(bytes.TrimSpace(c.raw), bytes.TrimSpace(other.raw))
}

// GeneratedPanel は生成済みパネル1枚分の結果です。
type GeneratedPanel struct {
	ID             string             `json:"id"`
	JobID          string             `json:"job_id"`
	PageNumber     int                `json:"page_number"`
	PanelNumber    int                `json:"panel_number"`
	Image          []byte             `json:"-"` // PNG
	Seed           int64              `json:"seed"`
	Prompt         string             `json:"prompt"`
	NegativePrompt string             `json:"negative_prompt"`
	Context        ConsistencyContext `json:"-"`
	// PrecedingContext は生成時に受け取った直前パネルのコンテキストです。再生成の入力になります。
	PrecedingContext ConsistencyContext `json:"-"`
	Descriptor       PanelDescriptor    `json:"descriptor"`
	LetteredImage    []byte             `json:"-"`
	Issues           []LetteringIssue   `json:"issues,omitempty"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// BubbleRegion は検出された吹き出し候補の領域です。
type BubbleRegion struct {
	Bounds      Rect    `json:"bounds"`
	Area        float64 `json:"area"`
	Vertices    int     `json:"vertices"`
	AspectRatio float64 `json:"aspect_ratio"`
	Circularity float64 `json:"circularity"`
	Confidence  float64 `json:"confidence"`
}

// LetteringIssue は写植時に発生した回復可能な問題です。
type LetteringIssue struct {
	Kind          string `json:"kind"`
	PanelNumber   int    `json:"panel_number"`
	DialogueIndex int    `json:"dialogue_index"` // 対応するセリフがない場合は -1
	BubbleIndex   int    `json:"bubble_index"`   // 対応する吹き出しがない場合は -1
	Text          string `json:"text,omitempty"`
	Reason        string `json:"reason"`
}

// IssueKindBubbleAssignmentMismatch は吹き出しとセリフの対応が取れなかったことを示します。
const IssueKindBubbleAssignmentMismatch = "BubbleAssignmentMismatch"

// IssueKindSoundEffectNotPlaced は効果音をコマ内に配置できなかったことを示します。
const IssueKindSoundEffectNotPlaced = "SoundEffectNotPlaced"
