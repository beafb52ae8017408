package director

import (
	"image"
	"testing"
)

func TestStyleManager_Strip(t *testing.T) {
	s := NewStyleManager()
	tests := []struct {
		in       string
		wantText string
		wantKind DialogueType
	}{
		{"待て！[shout]", "待て！", DialogueShout},
		{"[thought] もしかして…", "もしかして…", DialogueThought},
		{"こんにちは", "こんにちは", DialogueNormal},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			text, kind := s.Strip(tt.in)
			if text != tt.wantText || kind != tt.wantKind {
				t.Errorf("期待値 (%q, %s), 実際の値 (%q, %s)", tt.wantText, tt.wantKind, text, kind)
			}
		})
	}

	if s.FontScale(DialogueShout) <= 1 || s.FontScale(DialogueThought) >= 1 || s.FontScale(DialogueNormal) != 1 {
		t.Errorf("文字サイズの倍率が不正です")
	}
	if s.ResolveSpeakerID("") != "speaker-narration" || s.ResolveSpeakerID("Aoi") != s.ResolveSpeakerID("aoi") {
		t.Errorf("話者IDが不正です")
	}
}

func TestLayoutManager_Anchors(t *testing.T) {
	l := NewLayoutManager()
	area := image.Rect(0, 0, 500, 400)
	size := image.Pt(100, 50)

	even := l.Anchors(0, area, size)
	odd := l.Anchors(1, area, size)
	if len(even) == 0 || len(odd) == 0 {
		t.Fatal("配置候補がありません")
	}
	if even[0] != image.Pt(50, 310) {
		t.Errorf("偶数番目の最初の候補: 実際の値 %v", even[0])
	}
	if odd[0] != image.Pt(350, 40) {
		t.Errorf("奇数番目の最初の候補: 実際の値 %v", odd[0])
	}

	if got := l.Anchors(0, image.Rect(0, 0, 50, 50), size); len(got) != 0 {
		t.Errorf("収まらない場合は候補なしになるべきです: %v", got)
	}
}
