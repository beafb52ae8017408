package runner

import (
	"context"
	"fmt"

	"github.com/shouni/go-manga-press/pkg/asset"
	"github.com/shouni/go-manga-press/pkg/publisher"
)

// MangaPublishRunner はジョブごとの出力ディレクトリへ成果物を書き出します。
type MangaPublishRunner struct {
	publisher    *publisher.MangaPublisher
	outputDir    string
	webtoonWidth int
}

// NewMangaPublishRunner は MangaPublishRunner を初期化します。
func NewMangaPublishRunner(pub *publisher.MangaPublisher, outputDir string, webtoonWidth int) *MangaPublishRunner {
	return &MangaPublishRunner{publisher: pub, outputDir: outputDir, webtoonWidth: webtoonWidth}
}

// Run は原稿を <outputDir>/<jobID>/ に書き出します。
func (pr *MangaPublishRunner) Run(ctx context.Context, m publisher.Manuscript) (publisher.PublishResult, error) {
	dir, err := asset.JobOutputDir(pr.outputDir, m.JobID)
	if err != nil {
		return publisher.PublishResult{}, fmt.Errorf("出力ディレクトリの解決に失敗しました: %w", err)
	}
	return pr.publisher.Publish(ctx, m, publisher.Options{OutputDir: dir, WebtoonWidth: pr.webtoonWidth})
}
