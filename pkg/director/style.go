package director

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DialogueType は吹き出しの種類です。
type DialogueType string

const (
	DialogueNormal  DialogueType = "normal"
	DialogueShout   DialogueType = "shout"
	DialogueThought DialogueType = "thought"
)

var dialogueTags = map[DialogueType]string{
	DialogueShout:   "[shout]",
	DialogueThought: "[thought]",
}

// StyleManager は話者の識別や吹き出しの種類（叫び等）を管理します。
type StyleManager struct {
	ShoutScale   float64
	ThoughtScale float64
}

func NewStyleManager() *StyleManager {
	return &StyleManager{
		ShoutScale:   1.25,
		ThoughtScale: 0.9,
	}
}

// ResolveSpeakerID は話者名から識別子として安全なハッシュ ID を生成します。
func (s *StyleManager) ResolveSpeakerID(name string) string {
	if name == "" {
		return "speaker-narration"
	}
	h := sha256.New()
	h.Write([]byte(strings.ToLower(name)))
	return "speaker-" + hex.EncodeToString(h.Sum(nil))[:10]
}

// DetermineDialogueType はセリフに含まれるメタタグから吹き出しの種類を判定します。
func (s *StyleManager) DetermineDialogueType(text string) DialogueType {
	switch {
	case strings.Contains(text, dialogueTags[DialogueShout]):
		return DialogueShout
	case strings.Contains(text, dialogueTags[DialogueThought]):
		return DialogueThought
	default:
		return DialogueNormal
	}
}

// Strip はメタタグを取り除いた描画用のテキストと吹き出しの種類を返します。
func (s *StyleManager) Strip(text string) (string, DialogueType) {
	kind := s.DetermineDialogueType(text)
	for _, tag := range dialogueTags {
		text = strings.ReplaceAll(text, tag, "")
	}
	return strings.TrimSpace(text), kind
}

// FontScale は吹き出しの種類に応じた文字サイズの倍率です。
func (s *StyleManager) FontScale(kind DialogueType) float64 {
	switch kind {
	case DialogueShout:
		return s.ShoutScale
	case DialogueThought:
		return s.ThoughtScale
	default:
		return 1
	}
}
