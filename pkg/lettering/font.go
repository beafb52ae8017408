package lettering

import (
	"fmt"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// Fonts は写植に使う書体です。Face は goroutine セーフではないため描画ごとに生成します。
type Fonts struct {
	font *opentype.Font
}

// LoadFonts は path の TTF/OTF を読み込みます。path が空の場合は組み込みの Go フォントを使用します。
// 日本語などを描画する場合は CJK グリフを含むフォントを指定してください。
func LoadFonts(path string) (*Fonts, error) {
	data := goregular.TTF
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("フォントファイルの読み込みに失敗しました: %w", err)
		}
		data = b
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("フォントの解析に失敗しました: %w", err)
	}
	return &Fonts{font: f}, nil
}

func (f *Fonts) face(size int) (font.Face, error) {
	face, err := opentype.NewFace(f.font, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("サイズ %d のフォントフェイス生成に失敗しました: %w", size, err)
	}
	return face, nil
}
