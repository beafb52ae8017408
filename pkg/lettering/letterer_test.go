package lettering

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"
	"testing"

	"github.com/shouni/go-manga-press/pkg/domain"
)

func bubbleAt(x, y, w, h int) domain.BubbleRegion {
	return domain.BubbleRegion{Bounds: domain.Rect{X: x, Y: y, Width: w, Height: h}}
}

func dialoguePanel(lines ...string) domain.PanelDescriptor {
	p := domain.PanelDescriptor{PanelNumber: 2, Type: domain.PanelTypeDialogue}
	for _, l := range lines {
		p.Dialogue = append(p.Dialogue, domain.DialogueLine{Character: "Aoi", Text: l})
	}
	return p
}

func TestAssign_Positional(t *testing.T) {
	area := image.Rect(0, 0, 400, 400)

	t.Run("右から左の読み順で割り当てること", func(t *testing.T) {
		bubbles := []domain.BubbleRegion{bubbleAt(10, 10, 80, 60), bubbleAt(300, 10, 80, 60), bubbleAt(150, 200, 80, 60)}
		a, err := Assign(PolicyPositional, dialoguePanel("one", "two", "three"), bubbles, area)
		if err != nil {
			t.Fatal(err)
		}
		want := []Pair{{Bubble: 1, Dialogue: 0}, {Bubble: 0, Dialogue: 1}, {Bubble: 2, Dialogue: 2}}
		if len(a.Pairs) != len(want) {
			t.Fatalf("対応数: 期待値 %d, 実際の値 %d", len(want), len(a.Pairs))
		}
		for i := range want {
			if a.Pairs[i] != want[i] {
				t.Errorf("対応 %d: 期待値 %+v, 実際の値 %+v", i, want[i], a.Pairs[i])
			}
		}
		if len(a.Issues) != 0 {
			t.Errorf("問題は発生しないはずです: %+v", a.Issues)
		}
	})

	t.Run("吹き出しが足りないセリフは保留して問題として記録すること", func(t *testing.T) {
		bubbles := []domain.BubbleRegion{bubbleAt(300, 10, 80, 60)}
		a, err := Assign(PolicyPositional, dialoguePanel("one", "two"), bubbles, area)
		if err != nil {
			t.Fatal(err)
		}
		if len(a.Pairs) != 1 || len(a.Unmatched) != 1 || a.Unmatched[0].Text != "two" {
			t.Fatalf("保留されたセリフが不正です: %+v", a)
		}
		issue := a.Issues[0]
		if issue.Kind != domain.IssueKindBubbleAssignmentMismatch || issue.DialogueIndex != 1 || issue.BubbleIndex != -1 || issue.PanelNumber != 2 {
			t.Errorf("問題の内容が不正です: %+v", issue)
		}
	})

	t.Run("セリフより吹き出しが多い場合は余った吹き出しを記録すること", func(t *testing.T) {
		bubbles := []domain.BubbleRegion{bubbleAt(10, 10, 80, 60), bubbleAt(300, 10, 80, 60), bubbleAt(150, 200, 80, 60)}
		a, err := Assign(PolicyPositional, dialoguePanel("only"), bubbles, area)
		if err != nil {
			t.Fatal(err)
		}
		if len(a.Pairs) != 1 || a.Pairs[0].Bubble != 1 {
			t.Errorf("対応が不正です: %+v", a.Pairs)
		}
		if len(a.Issues) != 2 || a.Issues[0].DialogueIndex != -1 || len(a.Unmatched) != 0 {
			t.Errorf("余った吹き出しの問題が不正です: %+v", a.Issues)
		}
	})

	t.Run("未知の方式はエラーになること", func(t *testing.T) {
		if _, err := Assign("random", dialoguePanel("x"), nil, area); err == nil {
			t.Error("エラーを期待しました")
		}
	})
}

func TestAssign_Spatial(t *testing.T) {
	area := image.Rect(0, 0, 400, 400)
	// 入力順は左下、右上
	bubbles := []domain.BubbleRegion{bubbleAt(20, 300, 80, 60), bubbleAt(300, 20, 80, 60)}

	a, err := Assign(PolicySpatial, dialoguePanel("first", "second"), bubbles, area)
	if err != nil {
		t.Fatal(err)
	}
	want := []Pair{{Bubble: 1, Dialogue: 0}, {Bubble: 0, Dialogue: 1}}
	for i := range want {
		if a.Pairs[i] != want[i] {
			t.Errorf("対応 %d: 期待値 %+v, 実際の値 %+v", i, want[i], a.Pairs[i])
		}
	}

	again, _ := Assign(PolicySpatial, dialoguePanel("first", "second"), bubbles, area)
	for i := range a.Pairs {
		if again.Pairs[i] != a.Pairs[i] {
			t.Errorf("結果が決定的ではありません")
		}
	}

	t.Run("吹き出しが複数でセリフが少ない場合も1対1になること", func(t *testing.T) {
		many := append(bubbles, bubbleAt(160, 160, 80, 60))
		a, err := Assign(PolicySpatial, dialoguePanel("only"), many, area)
		if err != nil {
			t.Fatal(err)
		}
		if len(a.Pairs) != 1 || len(a.Issues) != 2 {
			t.Errorf("対応 %d 件、問題 %d 件でした", len(a.Pairs), len(a.Issues))
		}
	})
}

func TestIsCJK(t *testing.T) {
	tests := []struct {
		text, lang string
		want       bool
	}{
		{"こんにちは", "", true},
		{"Hello there", "", false},
		{"OK だよ", "", false},
		{"Hello", "ja", true},
		{"こんにちは", "en", false},
		{"你好", "zh-Hans", true},
	}
	for _, tt := range tests {
		if got := IsCJK(tt.text, tt.lang); got != tt.want {
			t.Errorf("IsCJK(%q, %q): 期待値 %v, 実際の値 %v", tt.text, tt.lang, tt.want, got)
		}
	}
}

func newTestLetterer(t *testing.T) *Letterer {
	t.Helper()
	fonts, err := LoadFonts("")
	if err != nil {
		t.Fatal(err)
	}
	l, err := NewLetterer(Options{MinFontSize: 8, MaxFontSize: 40, SafetyMargin: 0.15, Policy: PolicyPositional}, fonts, stubDetector{})
	if err != nil {
		t.Fatal(err)
	}
	return l
}

type stubDetector struct {
	regions []domain.BubbleRegion
}

func (s stubDetector) Detect(image.Image) []domain.BubbleRegion { return s.regions }

func whiteImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return img
}

func darkPixels(img image.Image, r image.Rectangle) int {
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if g := color.GrayModel.Convert(img.At(x, y)).(color.Gray); g.Y < 128 {
				n++
			}
		}
	}
	return n
}

func TestLetterer_Letter(t *testing.T) {
	l := newTestLetterer(t)
	src := whiteImage(400, 300)
	bubble := bubbleAt(220, 20, 160, 100)

	panel := dialoguePanel("Hello there, friend! [shout]", "Nobody hears this")
	panel.SoundEffects = []domain.SoundEffect{{Text: "BAM", Style: "red"}}

	res, err := l.Letter(context.Background(), src, []domain.BubbleRegion{bubble}, panel)
	if err != nil {
		t.Fatalf("写植に失敗しました: %v", err)
	}

	if darkPixels(res.Image, bubble.Bounds.Image()) == 0 {
		t.Error("吹き出しの中に文字が描かれていません")
	}
	if darkPixels(src, src.Bounds()) != 0 {
		t.Error("元の画像が変更されています")
	}
	if len(res.Unmatched) != 1 || res.Unmatched[0].Text != "Nobody hears this" {
		t.Errorf("保留されたセリフが不正です: %+v", res.Unmatched)
	}
	if !errors.Is(res.Err(), domain.ErrBubbleAssignmentMismatch) {
		t.Errorf("ErrBubbleAssignmentMismatch を期待しましたが %v でした", res.Err())
	}

	outside := 0
	b := res.Image.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if image.Pt(x, y).In(bubble.Bounds.Image()) {
				continue
			}
			if c := res.Image.RGBAAt(x, y); c.R > 0x80 && c.G < 0x40 {
				outside++
			}
		}
	}
	if outside == 0 {
		t.Error("効果音が吹き出しの外に描かれていません")
	}
}

func TestLetterer_SoundEffectNotPlaced(t *testing.T) {
	l := newTestLetterer(t)
	panel := domain.PanelDescriptor{
		PanelNumber:  3,
		SoundEffects: []domain.SoundEffect{{Text: strings.Repeat("BOOM", 12)}},
	}

	res, err := l.Letter(context.Background(), whiteImage(40, 20), nil, panel)
	if err != nil {
		t.Fatalf("写植に失敗しました: %v", err)
	}

	t.Run("配置できない効果音を問題として記録すること", func(t *testing.T) {
		if len(res.Issues) != 1 {
			t.Fatalf("問題の数: 期待値 1, 実際の値 %d", len(res.Issues))
		}
		got := res.Issues[0]
		if got.Kind != domain.IssueKindSoundEffectNotPlaced {
			t.Errorf("種類: 期待値 %s, 実際の値 %s", domain.IssueKindSoundEffectNotPlaced, got.Kind)
		}
		if got.PanelNumber != 3 || got.DialogueIndex != -1 || got.BubbleIndex != -1 {
			t.Errorf("位置情報が不正です: %+v", got)
		}
		if got.Text != panel.SoundEffects[0].Text {
			t.Errorf("テキスト: 期待値 %q, 実際の値 %q", panel.SoundEffects[0].Text, got.Text)
		}
	})

	t.Run("効果音の配置漏れは吹き出しの不一致として扱わないこと", func(t *testing.T) {
		if err := res.Err(); err != nil {
			t.Errorf("nil を期待しましたが %v でした", err)
		}
	})
}

func TestLetterer_Fit(t *testing.T) {
	l := newTestLetterer(t)

	t.Run("大きな箱では最大サイズに近い文字になること", func(t *testing.T) {
		b, ok, err := l.fit("Hi", false, image.Pt(400, 400), 1)
		if err != nil || !ok {
			t.Fatalf("収まるはずです: %v", err)
		}
		if b.size != 40 {
			t.Errorf("サイズ: 期待値 40, 実際の値 %d", b.size)
		}
	})

	t.Run("小さな箱では改行して縮小すること", func(t *testing.T) {
		b, ok, err := l.fit("one two three four five six", false, image.Pt(120, 120), 1)
		if err != nil || !ok {
			t.Fatalf("収まるはずです: %v", err)
		}
		if len(b.lines) < 2 || b.width > 120 || b.height > 120 {
			t.Errorf("組版結果が箱を超えています: %+v", b)
		}
	})

	t.Run("収まらない場合は最小サイズで返すこと", func(t *testing.T) {
		b, ok, err := l.fit("an extremely long sentence that cannot possibly fit", false, image.Pt(20, 10), 1)
		if err != nil {
			t.Fatal(err)
		}
		if ok || b.size != 8 {
			t.Errorf("最小サイズ 8 を期待しましたが %d (%v) でした", b.size, ok)
		}
	})

	t.Run("縦書きは右から左に列を並べること", func(t *testing.T) {
		b, ok, err := l.fit("あいうえおかきくけこ", true, image.Pt(60, 60), 1)
		if err != nil || !ok {
			t.Fatalf("収まるはずです: %v", err)
		}
		if !b.vertical || len(b.lines) < 2 {
			t.Errorf("縦書きの列が不正です: %+v", b)
		}
		if []rune(b.lines[0])[0] != 'あ' {
			t.Errorf("最初の列は先頭の文字から始まるべきです: %q", b.lines[0])
		}
	})
}

func TestLetterer_LetterPNG(t *testing.T) {
	fonts, err := LoadFonts("")
	if err != nil {
		t.Fatal(err)
	}
	bubble := bubbleAt(10, 10, 120, 80)
	l, err := NewLetterer(Options{MinFontSize: 8, MaxFontSize: 30, SafetyMargin: 0.1}, fonts, stubDetector{regions: []domain.BubbleRegion{bubble}})
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, whiteImage(200, 200)); err != nil {
		t.Fatal(err)
	}
	out, res, err := l.LetterPNG(context.Background(), buf.Bytes(), dialoguePanel("Hi"))
	if err != nil {
		t.Fatalf("写植に失敗しました: %v", err)
	}
	if len(res.Issues) != 0 {
		t.Errorf("問題は発生しないはずです: %+v", res.Issues)
	}
	if _, err := png.Decode(bytes.NewReader(out)); err != nil {
		t.Errorf("出力が PNG ではありません: %v", err)
	}

	if _, _, err := l.LetterPNG(context.Background(), []byte("not an image"), dialoguePanel("Hi")); err == nil {
		t.Error("不正な画像はエラーになるべきです")
	}
}
