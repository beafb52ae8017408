package publisher

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	placeholder          = "placeholder.png"
	defaultNarrationName = "narration"
)

var tagRegex = regexp.MustCompile(`\[[^\]]+\]`)

// BuildMarkdown は、タイトル、ページ画像のパス、パネルごとのセリフと効果音を Markdown にまとめます。
// 写植できなかったセリフは「未配置」として書き出します。
func BuildMarkdown(m Manuscript, imagePaths []string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s\n\n", m.Title))
	if m.Synopsis != "" {
		sb.WriteString(m.Synopsis + "\n\n")
	}

	for i, page := range m.Pages {
		img := placeholder
		if i < len(imagePaths) {
			img = imagePaths[i]
		}

		sb.WriteString(fmt.Sprintf("## Page %d\n\n", page.Script.PageNumber))
		sb.WriteString(fmt.Sprintf("![page %d](%s)\n\n", page.Script.PageNumber, img))
		if page.Layout.Name != "" {
			sb.WriteString(fmt.Sprintf("- layout: %s\n", page.Layout.Name))
		}

		for _, panel := range page.Script.Panels {
			sb.WriteString(fmt.Sprintf("\n### Panel %d [%s]\n", panel.PanelNumber, panel.Type))
			if panel.Description != "" {
				sb.WriteString(fmt.Sprintf("- description: %s\n", panel.Description))
			}
			for _, line := range panel.Dialogue {
				speaker := line.Character
				if speaker == "" {
					speaker = defaultNarrationName
				}
				text := strings.TrimSpace(tagRegex.ReplaceAllString(line.Text, ""))
				sb.WriteString(fmt.Sprintf("- dialogue: %s: %s\n", speaker, text))
			}
			for _, sfx := range panel.SoundEffects {
				if sfx.Style != "" {
					sb.WriteString(fmt.Sprintf("- sfx: %s [%s]\n", sfx.Text, sfx.Style))
				} else {
					sb.WriteString(fmt.Sprintf("- sfx: %s\n", sfx.Text))
				}
			}
		}

		if len(page.Issues) > 0 {
			sb.WriteString("\n#### 未配置\n")
			for _, issue := range page.Issues {
				if issue.Text == "" {
					continue
				}
				sb.WriteString(fmt.Sprintf("- panel %d: %s\n", issue.PanelNumber, issue.Text))
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
