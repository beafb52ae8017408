package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shouni/go-manga-press/pkg/backend"
	"github.com/shouni/go-manga-press/pkg/domain"
	"github.com/shouni/go-manga-press/pkg/prompts"

	"github.com/google/uuid"
)

// PageRequest は1ページ分のパネル生成の入力です。
type PageRequest struct {
	JobID      string
	PageNumber int
	Panels     []domain.PanelDescriptor // 正規化済み。panel_number の昇順で処理します
	Adapters   AdapterSet
	Style      domain.StyleParams
	BaseSeed   int64 // パネル k のシードは BaseSeed + k
}

// PageResult はページ生成の結果です。失敗時も失敗前に生成したパネルを保持します。
type PageResult struct {
	PageNumber   int
	Panels       []domain.GeneratedPanel
	FinalContext domain.ConsistencyContext
	FailedPanel  int // 0 は失敗なし
}

// RegenerateRequest は1パネルの再生成の入力です。
type RegenerateRequest struct {
	Current    domain.GeneratedPanel  // 置き換え対象の生成済みパネル
	Descriptor domain.PanelDescriptor // 変更適用後のディスクリプタ
	Adapters   AdapterSet
	Style      domain.StyleParams
	Seed       *int64 // nil の場合は直前のシード + 1
}

// PanelError はページ内の特定パネルでの失敗を表します。
type PanelError struct {
	PageNumber  int
	PanelNumber int
	Err         error
}

func (e *PanelError) Error() string {
	return fmt.Sprintf("ページ %d のパネル %d の生成に失敗しました: %v", e.PageNumber, e.PanelNumber, e.Err)
}

func (e *PanelError) Unwrap() error { return e.Err }

// Sequencer は1ページ内のパネルを厳密に番号順で生成し、コンテキストを次のパネルへ引き継ぎます。
type Sequencer struct {
	backend  PanelBackend
	prompt   prompts.PanelPrompt
	contexts *ContextCache
}

// NewSequencer は Sequencer を初期化します。
// 実行中の呼び出しをキャンセル時に中断するかどうかはバックエンド側の設定に従います。
func NewSequencer(b PanelBackend, p prompts.PanelPrompt, contexts *ContextCache) *Sequencer {
	return &Sequencer{
		backend:  b,
		prompt:   p,
		contexts: contexts,
	}
}

// GeneratePage はパネルを順に生成します。パネル1は空のコンテキスト、パネル k はパネル k-1 の応答コンテキストを受け取ります。
// いずれかのパネルが失敗すると残りのパネルは生成せず、それまでの結果と *PanelError を返します。
func (s *Sequencer) GeneratePage(ctx context.Context, req PageRequest) (*PageResult, error) {
	if err := checkOrder(req.Panels); err != nil {
		return nil, fmt.Errorf("ページ %d: %w", req.PageNumber, err)
	}

	run := newPageRun(req.JobID, req.PageNumber, len(req.Panels))
	logger := slog.With("job_id", req.JobID, "page", req.PageNumber)

	for _, desc := range req.Panels {
		if err := ctx.Err(); err != nil {
			return run.result(desc.PanelNumber), &PanelError{
				PageNumber:  req.PageNumber,
				PanelNumber: desc.PanelNumber,
				Err:         fmt.Errorf("%w: %v", domain.ErrCancellationRequested, err),
			}
		}

		panel := domain.GeneratedPanel{
			ID:          uuid.NewString(),
			JobID:       req.JobID,
			PageNumber:  req.PageNumber,
			PanelNumber: desc.PanelNumber,
			Seed:        req.BaseSeed + int64(desc.PanelNumber),
			Descriptor:  desc,
		}
		preceding := run.live

		start := time.Now()
		generated, err := s.generate(ctx, panel, preceding, req.Adapters, req.Style)
		if err != nil {
			logger.WarnContext(ctx, "Panel generation failed", "panel", desc.PanelNumber, "error", err)
			return run.result(desc.PanelNumber), &PanelError{PageNumber: req.PageNumber, PanelNumber: desc.PanelNumber, Err: err}
		}

		s.contexts.Store(generated.ID, preceding)
		run.advance(generated)
		logger.InfoContext(ctx, "Panel generation completed",
			"panel", desc.PanelNumber,
			"seed", generated.Seed,
			"duration", time.Since(start).Round(time.Millisecond))
	}

	return run.result(0), nil
}

// RegeneratePanel は直前コンテキストを使ってパネルを1枚だけ作り直します。
// コンテキストはキャッシュ、なければ req.Current に保存されたものを使います。後続パネルへの再連鎖は行いません。
func (s *Sequencer) RegeneratePanel(ctx context.Context, req RegenerateRequest) (*domain.GeneratedPanel, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCancellationRequested, err)
	}

	preceding, ok := s.contexts.Preceding(req.Current.ID)
	if !ok {
		preceding = req.Current.PrecedingContext
		if preceding.IsEmpty() && req.Current.PanelNumber != 1 {
			return nil, fmt.Errorf("%w: パネル %s", domain.ErrContextUnavailable, req.Current.ID)
		}
	}

	panel := req.Current
	panel.Descriptor = req.Descriptor
	panel.Seed = req.Current.Seed + 1
	if req.Seed != nil {
		panel.Seed = *req.Seed
	}
	panel.LetteredImage = nil
	panel.Issues = nil

	generated, err := s.generate(ctx, panel, preceding, req.Adapters, req.Style)
	if err != nil {
		return nil, &PanelError{PageNumber: panel.PageNumber, PanelNumber: panel.PanelNumber, Err: err}
	}
	s.contexts.Store(generated.ID, preceding)

	slog.InfoContext(ctx, "Panel regenerated", "panel_id", generated.ID, "seed", generated.Seed)
	return &generated, nil
}

func (s *Sequencer) generate(
	ctx context.Context,
	panel domain.GeneratedPanel,
	preceding domain.ConsistencyContext,
	adapters AdapterSet,
	style domain.StyleParams,
) (domain.GeneratedPanel, error) {
	prompt, negative := s.prompt.BuildPanel(panel.Descriptor, style)

	resp, err := s.backend.GeneratePanel(ctx, backend.PanelRequest{
		Prompt:          prompt,
		NegativePrompt:  negative,
		Width:           style.Width,
		Height:          style.Height,
		Steps:           style.Steps,
		CFGScale:        style.CFGScale,
		Sampler:         style.Sampler,
		Seed:            panel.Seed,
		ActiveAdapters:  adapters.For(panel.Descriptor.Speakers()),
		PreviousContext: preceding.Raw(),
		PanelType:       panel.Descriptor.Type,
	})
	if err != nil {
		return panel, err
	}

	panel.Image = resp.Image
	panel.Seed = resp.Seed
	panel.Prompt = prompt
	panel.NegativePrompt = negative
	panel.Context = resp.Context
	panel.PrecedingContext = preceding
	panel.UpdatedAt = time.Now().UTC()
	return panel, nil
}

func checkOrder(panels []domain.PanelDescriptor) error {
	if len(panels) == 0 {
		return fmt.Errorf("%w: パネルがありません", domain.ErrInvalidScript)
	}
	for i := 1; i < len(panels); i++ {
		if panels[i].PanelNumber <= panels[i-1].PanelNumber {
			return fmt.Errorf("%w: パネル番号が昇順ではありません (%d の後に %d)",
				domain.ErrInvalidScript, panels[i-1].PanelNumber, panels[i].PanelNumber)
		}
	}
	return nil
}

// FailedPanel は err が *PanelError を含む場合に失敗したパネル番号を返します。
func FailedPanel(err error) (int, bool) {
	var pe *PanelError
	if errors.As(err, &pe) {
		return pe.PanelNumber, true
	}
	return 0, false
}
