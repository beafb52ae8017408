package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/shouni/go-manga-press/pkg/asset"
	"github.com/shouni/go-manga-press/pkg/domain"
	"github.com/shouni/go-remote-io/remoteio"
)

// Options はパブリッシュ動作を制御する設定項目です。
type Options struct {
	OutputDir    string
	WebtoonWidth int // 0 の場合は縦読み画像を出力しません
}

// PublishResult はパブリッシュ処理の結果として生成されたファイルの情報を保持します。
type PublishResult struct {
	ManifestPath string   `json:"manifest_path"`
	ScriptPath   string   `json:"script_path"`
	WebtoonPath  string   `json:"webtoon_path,omitempty"`
	PagePaths    []string `json:"page_paths"`
}

// Page は出力するページ1枚分です。
type Page struct {
	Script domain.PageScript
	Layout domain.PageLayout
	Image  []byte // PNG
	Issues []domain.LetteringIssue
}

// Manuscript は1話分の出力内容です。
type Manuscript struct {
	JobID    string
	Title    string
	Synopsis string
	Pages    []Page
}

// MangaPublisher は成果物の永続化とフォーマット変換を担います。
type MangaPublisher struct {
	writer remoteio.OutputWriter
}

// NewMangaPublisher は MangaPublisher を初期化します。
func NewMangaPublisher(writer remoteio.OutputWriter) *MangaPublisher {
	return &MangaPublisher{writer: writer}
}

// Publish はページ画像、縦読み画像、台本 JSON、Markdown の一覧を書き出します。
func (p *MangaPublisher) Publish(ctx context.Context, m Manuscript, opts Options) (PublishResult, error) {
	result := PublishResult{}
	if len(m.Pages) == 0 {
		return result, fmt.Errorf("出力するページがありません")
	}

	// 1. ページ画像の保存
	for _, page := range m.Pages {
		pagePath, err := asset.PagePath(opts.OutputDir, page.Script.PageNumber)
		if err != nil {
			return result, fmt.Errorf("ページ %d の出力パスの解決に失敗しました: %w", page.Script.PageNumber, err)
		}
		if err := p.writer.Write(ctx, pagePath, bytes.NewReader(page.Image), "image/png"); err != nil {
			return result, fmt.Errorf("ページ %d の書き込みに失敗しました: %w", page.Script.PageNumber, err)
		}
		result.PagePaths = append(result.PagePaths, pagePath)
	}

	// 2. 縦読み画像
	if opts.WebtoonWidth > 0 {
		strip, err := BuildWebtoon(m.Pages, opts.WebtoonWidth)
		if err != nil {
			return result, err
		}
		webtoonPath, err := asset.ResolveOutputPath(opts.OutputDir, asset.DefaultWebtoonFileName)
		if err != nil {
			return result, err
		}
		if err := p.writer.Write(ctx, webtoonPath, bytes.NewReader(strip), "image/png"); err != nil {
			return result, fmt.Errorf("縦読み画像の書き込みに失敗しました: %w", err)
		}
		result.WebtoonPath = webtoonPath
	}

	// 3. 正規化済み台本
	scripts := make([]domain.PageScript, len(m.Pages))
	for i, page := range m.Pages {
		scripts[i] = page.Script
	}
	scriptJSON, err := json.MarshalIndent(scripts, "", "  ")
	if err != nil {
		return result, fmt.Errorf("台本のエンコードに失敗しました: %w", err)
	}
	scriptPath, err := asset.ResolveOutputPath(opts.OutputDir, asset.DefaultScriptJSON)
	if err != nil {
		return result, err
	}
	if err := p.writer.Write(ctx, scriptPath, bytes.NewReader(scriptJSON), "application/json"); err != nil {
		return result, fmt.Errorf("台本の書き込みに失敗しました: %w", err)
	}
	result.ScriptPath = scriptPath

	// 4. Markdown の一覧
	relativePaths := make([]string, 0, len(result.PagePaths))
	for _, pagePath := range result.PagePaths {
		relativePaths = append(relativePaths, path.Join(asset.DefaultPageDir, filepath.Base(pagePath)))
	}
	manifestPath, err := asset.ResolveOutputPath(opts.OutputDir, asset.DefaultManifestName)
	if err != nil {
		return result, err
	}
	content := BuildMarkdown(m, relativePaths)
	if err := p.writer.Write(ctx, manifestPath, strings.NewReader(content), "text/markdown; charset=utf-8"); err != nil {
		return result, fmt.Errorf("markdownファイルの書き込みに失敗しました: %w", err)
	}
	result.ManifestPath = manifestPath

	slog.InfoContext(ctx, "Manga published",
		"job_id", m.JobID,
		"title", m.Title,
		"pages", len(result.PagePaths),
		"dir", opts.OutputDir)
	return result, nil
}
