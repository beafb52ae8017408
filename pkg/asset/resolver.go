package asset

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/shouni/go-utils/urlpath"
)

const (
	// DefaultPageDir は合成済みページ画像を格納するディレクトリ名です。
	DefaultPageDir = "pages"
	// DefaultPanelDir は写植済みパネル画像を格納するディレクトリ名です。
	DefaultPanelDir = "panels"
	// DefaultPageFileName はページ画像の共通のベースファイル名です。
	DefaultPageFileName = "page.png"
	// DefaultWebtoonFileName は縦読み用に連結した画像のファイル名です。
	DefaultWebtoonFileName = "webtoon.png"
	// DefaultManifestName は成果物の一覧を記した Markdown のファイル名です。
	DefaultManifestName = "manga.md"
	// DefaultScriptJSON は正規化済み台本の JSON ファイル名です。
	DefaultScriptJSON = "script.json"
)

// PageFileRegex はページ画像 (page_1.png 等) に一致します。
var PageFileRegex = createIndexedRegex(DefaultPageFileName)

// ResolveOutputPath は、ベースとなるディレクトリパスとファイル名から、
// GCS/ローカルを考慮した最終的な出力パスを生成します。
func ResolveOutputPath(baseDir, fileName string) (string, error) {
	return urlpath.ResolvePath(baseDir, fileName)
}

// ResolveBaseURL は、入力パス（URLまたはローカルパス）から
// 親ディレクトリのパスを解決し、末尾がセパレータで終わるように正規化します。
func ResolveBaseURL(rawPath string) string {
	return urlpath.ResolveBaseDir(rawPath)
}

// GenerateIndexedPath は、指定されたベースパスの拡張子の前に連番を挿入します。
// 例: "out/pages/page.png", 1 -> "out/pages/page_1.png"
func GenerateIndexedPath(basePath string, index int) (string, error) {
	return urlpath.GenerateIndexedPath(basePath, index)
}

// JobOutputDir はジョブごとの出力ディレクトリを返します。
func JobOutputDir(baseDir, jobID string) (string, error) {
	if jobID == "" {
		return "", fmt.Errorf("ジョブIDが空です")
	}
	return ResolveOutputPath(baseDir, jobID)
}

// PagePath はページ番号に対応するページ画像のパスを返します。
func PagePath(outputDir string, pageNumber int) (string, error) {
	dir, err := ResolveOutputPath(outputDir, DefaultPageDir)
	if err != nil {
		return "", err
	}
	base, err := ResolveOutputPath(dir, DefaultPageFileName)
	if err != nil {
		return "", err
	}
	return GenerateIndexedPath(base, pageNumber)
}

// createIndexedRegex は、ファイル名に基づきインデックス付きファイル用の正規表現を生成します。
// 例: "page.png" -> ^page_\d+\.png$
func createIndexedRegex(fileName string) *regexp.Regexp {
	ext := filepath.Ext(fileName)
	baseName := strings.TrimSuffix(fileName, ext)

	pattern := fmt.Sprintf(`^%s_\d+%s$`, regexp.QuoteMeta(baseName), regexp.QuoteMeta(ext))
	return regexp.MustCompile(pattern)
}
