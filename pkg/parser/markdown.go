package parser

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/shouni/go-manga-press/pkg/domain"
)

const (
	fieldKeyDescription = "description"
	fieldKeyAction      = "action"
	fieldKeyType        = "type"
	fieldKeyDialogue    = "dialogue"
	fieldKeySpeaker     = "speaker"
	fieldKeyText        = "text"
	fieldKeySFX         = "sfx"
	fieldKeyLanguage    = "language"
	fieldKeyStyle       = "style"
)

// MarkdownParser はMarkdown形式の台本を解析し、構造化データに変換する構造体です。
type MarkdownParser struct{}

// NewMarkdownParser は MarkdownParser を初期化します。
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{}
}

// Parse は Markdown テキストを解析して domain.Chapter 構造体に変換します。
//
//	# タイトル
//	## Page 1 [standard]
//	### Panel 1 [close_up]
//	- description: 港を見つめるアオイ
//	- dialogue: Aoi: 着いた！
//	- sfx: ザザーン [wave]
func (p *MarkdownParser) Parse(input string) (*domain.Chapter, error) {
	chapter := &domain.Chapter{}
	var (
		currentPage  *domain.PageScript
		currentPanel *domain.PanelDescriptor
		pendingName  string // "- speaker:" の直後に来る "- text:" 用
	)

	flushPanel := func() {
		if currentPage != nil && currentPanel != nil && hasContent(currentPanel) {
			currentPage.Panels = append(currentPage.Panels, *currentPanel)
		}
		currentPanel = nil
		pendingName = ""
	}
	flushPage := func() {
		flushPanel()
		if currentPage != nil && len(currentPage.Panels) > 0 {
			chapter.Pages = append(chapter.Pages, *currentPage)
		}
		currentPage = nil
	}

	for lineNo, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if m := PanelRegex.FindStringSubmatch(trimmed); m != nil {
			flushPanel()
			if currentPage == nil {
				// ページ見出しが省略された場合は暗黙の1ページ目とします
				currentPage = &domain.PageScript{PageNumber: len(chapter.Pages) + 1}
			}
			currentPanel = &domain.PanelDescriptor{PanelNumber: atoiOr(m[1], len(currentPage.Panels)+1)}
			if m[2] != "" {
				pt, err := domain.ParsePanelType(m[2])
				if err != nil {
					return nil, fmt.Errorf("%d行目: %w", lineNo+1, err)
				}
				currentPanel.Type = pt
			}
			continue
		}

		if m := PageRegex.FindStringSubmatch(trimmed); m != nil {
			flushPage()
			currentPage = &domain.PageScript{
				PageNumber: atoiOr(m[1], len(chapter.Pages)+1),
				Layout:     strings.TrimSpace(m[2]),
			}
			continue
		}

		if m := TitleRegex.FindStringSubmatch(trimmed); m != nil {
			chapter.Title = strings.TrimSpace(m[1])
			continue
		}

		if m := SynopsisRegex.FindStringSubmatch(trimmed); m != nil && currentPage == nil {
			chapter.Synopsis = strings.TrimSpace(m[1])
			continue
		}

		m := FieldRegex.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		key, val := strings.ToLower(m[1]), strings.TrimSpace(m[2])

		if currentPanel == nil {
			if key == fieldKeyStyle {
				chapter.Style = val
			}
			continue
		}

		switch key {
		case fieldKeyDescription, fieldKeyAction:
			currentPanel.Description = val
		case fieldKeyType:
			pt, err := domain.ParsePanelType(val)
			if err != nil {
				return nil, fmt.Errorf("%d行目: %w", lineNo+1, err)
			}
			currentPanel.Type = pt
		case fieldKeyDialogue:
			currentPanel.Dialogue = append(currentPanel.Dialogue, parseDialogue(val))
		case fieldKeySpeaker:
			pendingName = val
		case fieldKeyText:
			currentPanel.Dialogue = append(currentPanel.Dialogue, domain.DialogueLine{Character: pendingName, Text: val})
			pendingName = ""
		case fieldKeyLanguage:
			if n := len(currentPanel.Dialogue); n > 0 {
				currentPanel.Dialogue[n-1].Language = val
			}
		case fieldKeySFX:
			text, style := splitBracketSuffix(val)
			currentPanel.SoundEffects = append(currentPanel.SoundEffects, domain.SoundEffect{Text: text, Style: style})
		default:
			slog.Debug("Markdown内に未知のフィールドキーが見つかりました", "key", key, "line", lineNo+1)
		}
	}
	flushPage()

	if len(chapter.Pages) == 0 && chapter.Synopsis == "" {
		return nil, fmt.Errorf("%w: 有効なパネル情報が見つかりませんでした", domain.ErrInvalidScript)
	}
	return chapter, nil
}

// hasContent はパネルに有効な情報が含まれているか判定します。
func hasContent(panel *domain.PanelDescriptor) bool {
	return panel.Description != "" || len(panel.Dialogue) > 0 || len(panel.SoundEffects) > 0
}
