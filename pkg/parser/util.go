package parser

import (
	"strconv"
	"strings"

	"github.com/shouni/go-manga-press/pkg/domain"
)

// splitBracketSuffix は "ドン [impact]" を ("ドン", "impact") に分割します。
func splitBracketSuffix(s string) (string, string) {
	if m := bracketSuffixRegex.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	}
	return strings.TrimSpace(s), ""
}

// parseDialogue は "Name: text" 形式のセリフを分解します。話者がない場合はナレーションになります。
func parseDialogue(value string) domain.DialogueLine {
	name, text, found := strings.Cut(value, ":")
	if !found || strings.TrimSpace(name) == "" || strings.ContainsAny(name, "「」\"") {
		return domain.DialogueLine{Text: strings.TrimSpace(value)}
	}
	return domain.DialogueLine{
		Character: strings.TrimSpace(name),
		Text:      strings.TrimSpace(text),
	}
}

// atoiOr は数値変換に失敗した場合に fallback を返します。
func atoiOr(s string, fallback int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return n
	}
	return fallback
}
