package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shouni/go-manga-press/pkg/domain"
	"github.com/shouni/go-manga-press/pkg/generator"
	"github.com/shouni/go-manga-press/pkg/layout"
	"github.com/shouni/go-manga-press/pkg/lettering"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// PanelSequencer はページ内のパネルを順に生成し、1枚だけの再生成も行います。
type PanelSequencer interface {
	GeneratePage(ctx context.Context, req generator.PageRequest) (*generator.PageResult, error)
	RegeneratePanel(ctx context.Context, req generator.RegenerateRequest) (*domain.GeneratedPanel, error)
}

// PanelLetterer はパネル画像に写植します。
type PanelLetterer interface {
	LetterPNG(ctx context.Context, data []byte, panel domain.PanelDescriptor) ([]byte, *lettering.Result, error)
}

// PageJob は1ページ分の生成の入力です。
type PageJob struct {
	JobID    string
	Page     domain.PageScript
	Adapters generator.AdapterSet
	Style    domain.StyleParams
	BaseSeed int64
}

// PageOutput はページ生成の結果です。失敗時は Panels に生成済みのパネルだけが入ります。
type PageOutput struct {
	Panels []domain.GeneratedPanel
	Page   *layout.ComposedPage
	Issues []domain.LetteringIssue
}

// MangaPageRunner は生成、写植、合成をページ単位でまとめて実行します。
// 写植は CPU を使うため、全ページで共有するセマフォで同時実行数を制限します。
type MangaPageRunner struct {
	sequencer PanelSequencer
	letterer  PanelLetterer
	composer  layout.Composer
	render    *semaphore.Weighted
}

// NewMangaPageRunner は MangaPageRunner を初期化します。
func NewMangaPageRunner(sequencer PanelSequencer, letterer PanelLetterer, composer layout.Composer, renderConcurrency int) *MangaPageRunner {
	if renderConcurrency < 1 {
		renderConcurrency = 1
	}
	return &MangaPageRunner{
		sequencer: sequencer,
		letterer:  letterer,
		composer:  composer,
		render:    semaphore.NewWeighted(int64(renderConcurrency)),
	}
}

// Run はページのパネルを生成し、写植してからページに合成します。
func (r *MangaPageRunner) Run(ctx context.Context, job PageJob) (*PageOutput, error) {
	start := time.Now()
	res, err := r.sequencer.GeneratePage(ctx, generator.PageRequest{
		JobID:      job.JobID,
		PageNumber: job.Page.PageNumber,
		Panels:     job.Page.Panels,
		Adapters:   job.Adapters,
		Style:      job.Style,
		BaseSeed:   job.BaseSeed,
	})
	if err != nil {
		out := &PageOutput{}
		if res != nil {
			out.Panels = res.Panels
		}
		return out, err
	}

	panels, err := r.LetterAll(ctx, res.Panels)
	if err != nil {
		return &PageOutput{Panels: res.Panels}, err
	}

	composed, err := r.Compose(ctx, job.Page.PageNumber, job.Page.Layout, panels)
	if err != nil {
		return &PageOutput{Panels: panels}, err
	}

	out := &PageOutput{Panels: panels, Page: composed}
	for _, p := range panels {
		out.Issues = append(out.Issues, p.Issues...)
	}
	slog.InfoContext(ctx, "Page completed",
		"job_id", job.JobID,
		"page", job.Page.PageNumber,
		"panels", len(panels),
		"issues", len(out.Issues),
		"duration", time.Since(start).Round(time.Millisecond))
	return out, nil
}

// LetterAll はパネルを並列に写植します。入力の順序を保ちます。
func (r *MangaPageRunner) LetterAll(ctx context.Context, panels []domain.GeneratedPanel) ([]domain.GeneratedPanel, error) {
	out := make([]domain.GeneratedPanel, len(panels))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, p := range panels {
		eg.Go(func() error {
			lettered, err := r.Letter(egCtx, p)
			if err != nil {
				return err
			}
			out[i] = lettered
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Letter は1枚のパネルに写植します。対応の取れなかったセリフは問題として記録し、エラーにはしません。
func (r *MangaPageRunner) Letter(ctx context.Context, panel domain.GeneratedPanel) (domain.GeneratedPanel, error) {
	if err := r.render.Acquire(ctx, 1); err != nil {
		return panel, fmt.Errorf("%w: %v", domain.ErrCancellationRequested, err)
	}
	defer r.render.Release(1)

	data, res, err := r.letterer.LetterPNG(ctx, panel.Image, panel.Descriptor)
	if err != nil {
		return panel, fmt.Errorf("ページ %d のパネル %d の写植に失敗しました: %w", panel.PageNumber, panel.PanelNumber, err)
	}
	if issueErr := res.Err(); issueErr != nil {
		slog.WarnContext(ctx, "Lettering left dialogue unplaced",
			"page", panel.PageNumber,
			"panel", panel.PanelNumber,
			"bubbles", len(res.Bubbles),
			"unmatched", len(res.Unmatched),
			"error", issueErr)
	}
	panel.LetteredImage = data
	panel.Issues = res.Issues
	return panel, nil
}

// Compose は写植済みのパネルをページに合成します。写植前のパネルは元の画像を使います。
func (r *MangaPageRunner) Compose(ctx context.Context, pageNumber int, layoutName string, panels []domain.GeneratedPanel) (*layout.ComposedPage, error) {
	images := make([]layout.PanelImage, len(panels))
	for i, p := range panels {
		img := p.LetteredImage
		if len(img) == 0 {
			img = p.Image
		}
		images[i] = layout.PanelImage{PanelNumber: p.PanelNumber, Type: p.Descriptor.Type, Image: img}
	}
	page, err := r.composer.Compose(ctx, pageNumber, layoutName, images)
	if err != nil {
		return nil, fmt.Errorf("ページ %d の合成に失敗しました: %w", pageNumber, err)
	}
	return page, nil
}
