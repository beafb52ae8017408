package parser

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/shouni/go-manga-press/pkg/domain"
)

// Parser は台本テキストを解析するためのインターフェースを定義します。
type Parser interface {
	Parse(input string) (*domain.Chapter, error)
}

// ChapterParser は JSON 形式の台本を解析する構造体です。
type ChapterParser struct{}

// NewChapterParser は新しい ChapterParser インスタンスを生成します。
func NewChapterParser() *ChapterParser {
	return &ChapterParser{}
}

// Parse は JSON 文字列を domain.Chapter に変換します。
func (p *ChapterParser) Parse(input string) (*domain.Chapter, error) {
	return p.Decode(strings.NewReader(input))
}

// Decode は io.Reader から JSON をデコードします。
func (p *ChapterParser) Decode(r io.Reader) (*domain.Chapter, error) {
	chapter := &domain.Chapter{}
	if err := json.NewDecoder(r).Decode(chapter); err != nil {
		return nil, fmt.Errorf("%w: 台本JSONのパースに失敗しました: %v", domain.ErrInvalidScript, err)
	}
	if len(chapter.Pages) == 0 && strings.TrimSpace(chapter.Synopsis) == "" {
		return nil, fmt.Errorf("%w: 台本にページデータもあらすじも含まれていません", domain.ErrInvalidScript)
	}
	return chapter, nil
}

// ForPath はファイル拡張子から適切なパーサーを選択します。
func ForPath(path string) Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return NewMarkdownParser()
	default:
		return NewChapterParser()
	}
}
