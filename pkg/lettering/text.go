package lettering

import (
	"image"
	"strings"
	"unicode"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// block は1つの吹き出しに収める組版結果です。
type block struct {
	size     int
	vertical bool
	lines    []string // 横書きの行、または縦書きの列（右の列から順）
	width    int
	height   int
}

var cjkLanguages = []string{"ja", "zh", "ko"}

// IsCJK は縦書きで組むべきテキストかどうかを返します。
// 言語タグがあればそれに従い、なければ文字の過半数が CJK かどうかで判定します。
func IsCJK(text, language string) bool {
	if lang := strings.ToLower(strings.TrimSpace(language)); lang != "" {
		for _, l := range cjkLanguages {
			if lang == l || strings.HasPrefix(lang, l+"-") {
				return true
			}
		}
		return false
	}

	var cjk, letters int
	for _, r := range text {
		switch {
		case unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul):
			cjk++
			letters++
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			letters++
		}
	}
	return letters > 0 && cjk*2 > letters
}

func lineHeight(face font.Face) int {
	return face.Metrics().Height.Ceil()
}

// layoutHorizontal は単語単位の貪欲法で maxWidth に収まるよう改行します。
// 1文字も収まらない場合は false を返します。
func layoutHorizontal(face font.Face, text string, box image.Point) (block, bool) {
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			continue
		}
		current := ""
		for _, w := range words {
			candidate := w
			if current != "" {
				candidate = current + " " + w
			}
			if font.MeasureString(face, candidate).Ceil() <= box.X {
				current = candidate
				continue
			}
			if current != "" {
				lines = append(lines, current)
				current = ""
			}
			if font.MeasureString(face, w).Ceil() <= box.X {
				current = w
				continue
			}
			parts, ok := breakWord(face, w, box.X)
			if !ok {
				return block{}, false
			}
			lines = append(lines, parts[:len(parts)-1]...)
			current = parts[len(parts)-1]
		}
		if current != "" {
			lines = append(lines, current)
		}
	}

	b := block{lines: lines}
	for _, l := range lines {
		b.width = max(b.width, font.MeasureString(face, l).Ceil())
	}
	b.height = len(lines) * lineHeight(face)
	return b, b.width <= box.X && b.height <= box.Y
}

// breakWord は幅に収まらない単語を文字単位で分割します。
func breakWord(face font.Face, word string, maxWidth int) ([]string, bool) {
	var parts []string
	var current []rune
	for _, r := range word {
		next := append(current, r)
		if font.MeasureString(face, string(next)).Ceil() <= maxWidth {
			current = next
			continue
		}
		if len(current) == 0 {
			return nil, false
		}
		parts = append(parts, string(current))
		current = []rune{r}
	}
	if len(current) > 0 {
		parts = append(parts, string(current))
	}
	return parts, len(parts) > 0
}

// layoutVertical は上から下へ文字を並べ、列を右から左へ進める縦書きの組版です。
func layoutVertical(face font.Face, text string, box image.Point) (block, bool) {
	var runes []rune
	for _, r := range text {
		if !unicode.IsSpace(r) {
			runes = append(runes, r)
		}
	}
	step := lineHeight(face)
	if step <= 0 || len(runes) == 0 {
		return block{}, false
	}
	rows := box.Y / step
	if rows < 1 {
		return block{}, false
	}

	var cols []string
	for start := 0; start < len(runes); start += rows {
		end := min(start+rows, len(runes))
		cols = append(cols, string(runes[start:end]))
	}

	b := block{vertical: true, lines: cols}
	b.width = len(cols) * columnWidth(face)
	b.height = min(len(runes), rows) * step
	return b, b.width <= box.X && b.height <= box.Y
}

func columnWidth(face font.Face) int {
	return lineHeight(face)
}

func runeAdvance(face font.Face, r rune) fixed.Int26_6 {
	adv, ok := face.GlyphAdvance(r)
	if !ok {
		return face.Metrics().Height
	}
	return adv
}
