package domain

import (
	"encoding/json"
	"fmt"
	"image"
	"strings"
)

// PanelType はパネルの構図種別を表す閉じた列挙型です。
type PanelType string

const (
	PanelTypeEstablishingShot PanelType = "establishing_shot"
	PanelTypeCloseUp          PanelType = "close_up"
	PanelTypeAction           PanelType = "action"
	PanelTypeDialogue         PanelType = "dialogue"
)

// PanelTypes は定義済みのすべてのパネル種別です。
var PanelTypes = []PanelType{
	PanelTypeEstablishingShot,
	PanelTypeCloseUp,
	PanelTypeAction,
	PanelTypeDialogue,
}

// ParsePanelType は文字列をパネル種別に変換します。未知の値はエラーになります。
func ParsePanelType(s string) (PanelType, error) {
	normalized := PanelType(strings.ToLower(strings.TrimSpace(s)))
	for _, t := range PanelTypes {
		if t == normalized {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: 未知のパネル種別です: %q", ErrInvalidScript, s)
}

// PreservesAspect はリサイズ時に縦横比を維持すべき種別かどうかを返します。
func (t PanelType) PreservesAspect() bool {
	switch t {
	case PanelTypeCloseUp, PanelTypeDialogue:
		return true
	case PanelTypeEstablishingShot, PanelTypeAction:
		return false
	}
	return true
}

// MangaStyle は作品全体の画風ジャンルです。
type MangaStyle string

const (
	StyleShonen MangaStyle = "shonen"
	StyleShojo  MangaStyle = "shojo"
	StyleSeinen MangaStyle = "seinen"
	StyleJosei  MangaStyle = "josei"
	StyleKodomo MangaStyle = "kodomo"
)

// ParseMangaStyle は文字列を画風ジャンルに変換します。空文字は shonen として扱います。
func ParseMangaStyle(s string) (MangaStyle, error) {
	switch MangaStyle(strings.ToLower(strings.TrimSpace(s))) {
	case "", StyleShonen:
		return StyleShonen, nil
	case StyleShojo:
		return StyleShojo, nil
	case StyleSeinen:
		return StyleSeinen, nil
	case StyleJosei:
		return StyleJosei, nil
	case StyleKodomo:
		return StyleKodomo, nil
	}
	return "", fmt.Errorf("%w: 未知の画風です: %q", ErrInvalidScript, s)
}

// Chapter は台本全体（1話分）の構造です。
type Chapter struct {
	Title         string       `json:"title"`
	Synopsis      string       `json:"synopsis,omitempty"`
	Style         string       `json:"style,omitempty"`
	ChapterNumber int          `json:"chapter_number,omitempty"`
	Characters    []Character  `json:"characters,omitempty"`
	Pages         []PageScript `json:"pages"`
}

// PageScript は1ページ分の台本です。
type PageScript struct {
	PageNumber int               `json:"page_number"`
	Layout     string            `json:"layout,omitempty"`
	Panels     []PanelDescriptor `json:"panels"`
}

// PanelDescriptor は1パネル分の演出指示、セリフ、効果音を保持します。
type PanelDescriptor struct {
	PanelNumber         int            `json:"panel_number"`
	Type                PanelType      `json:"type"`
	Description         string         `json:"description"`
	EnhancedDescription string         `json:"enhanced_description,omitempty"`
	Dialogue            []DialogueLine `json:"dialogue,omitempty"`
	SoundEffects        []SoundEffect  `json:"sound_effects,omitempty"`
	Bounds              *Rect          `json:"bounds,omitempty"`
}

// DialogueLine はキャラクター1人分のセリフです。
type DialogueLine struct {
	Character string `json:"character"`
	Text      string `json:"text"`
	Language  string `json:"language,omitempty"`
}

// SoundEffect は擬音（オノマトペ）です。
type SoundEffect struct {
	Text  string `json:"text"`
	Style string `json:"style,omitempty"`
}

// UnmarshalJSON は "BOOM" のような文字列と {"text": "BOOM"} 形式の両方を受け付けます。
func (s *SoundEffect) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*s = SoundEffect{Text: text}
		return nil
	}
	type plain SoundEffect
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("効果音のデコードに失敗しました: %w", err)
	}
	*s = SoundEffect(p)
	return nil
}

// Speakers はセリフに登場するキャラクター名を出現順に重複なく返します。
func (p PanelDescriptor) Speakers() []string {
	seen := make(map[string]struct{}, len(p.Dialogue))
	var names []string
	for _, d := range p.Dialogue {
		if d.Character == "" {
			continue
		}
		key := strings.ToLower(d.Character)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, d.Character)
	}
	return names
}

// PromptDescription は生成に使う説明文を返します。拡張済みの説明があればそちらを優先します。
func (p PanelDescriptor) PromptDescription() string {
	if p.EnhancedDescription != "" {
		return p.EnhancedDescription
	}
	return p.Description
}

// UniqueSpeakers はチャプター全体のセリフ話者を出現順に重複なく返します。
func (c Chapter) UniqueSpeakers() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, page := range c.Pages {
		for _, panel := range page.Panels {
			for _, name := range panel.Speakers() {
				key := strings.ToLower(name)
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}
				names = append(names, name)
			}
		}
	}
	return names
}

// Rect は画像上の矩形領域です。
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// RectFrom は image.Rectangle から Rect を生成します。
func RectFrom(r image.Rectangle) Rect {
	return Rect{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// Image は image.Rectangle に変換します。
func (r Rect) Image() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}
