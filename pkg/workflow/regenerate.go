package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shouni/go-manga-press/pkg/domain"
	"github.com/shouni/go-manga-press/pkg/progress"
	"github.com/shouni/go-manga-press/pkg/runner"
	"github.com/shouni/go-manga-press/pkg/store"

	"github.com/google/uuid"
)

// RegenerationResult は再生成サブジョブと作り直したパネルです。失敗時の Panel は nil です。
type RegenerationResult struct {
	Regeneration domain.RegenerationJob `json:"regeneration"`
	Panel        *domain.GeneratedPanel `json:"panel,omitempty"`
}

// Regenerate はパネルを1枚だけ作り直し、そのページを保存済みのパネルから合成し直します。
// 処理は短命なサブジョブとして記録され、結果はサブジョブのトピックに通知されます。親ジョブの工程は変更しません。
func (m *Manager) Regenerate(ctx context.Context, req domain.RegenerationRequest) (*RegenerationResult, error) {
	panel, sub, err := m.beginRegeneration(ctx, req)
	if err != nil {
		return nil, err
	}
	return m.finishRegeneration(ctx, panel, sub, req)
}

// StartRegeneration はサブジョブを作成して再生成を非同期に実行します。返すサブジョブは RUNNING のスナップショットです。
// 結果はサブジョブのトピックと Regeneration で確認します。Cancel にサブジョブの ID を渡すと中断できます。
func (m *Manager) StartRegeneration(ctx context.Context, req domain.RegenerationRequest) (*domain.RegenerationJob, error) {
	panel, sub, err := m.beginRegeneration(ctx, req)
	if err != nil {
		return nil, err
	}
	snapshot := sub

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := m.register(sub.ID, cancel); err != nil {
		cancel()
		sub.Status, sub.Error, sub.UpdatedAt = domain.RegenerationFailed, err.Error(), time.Now().UTC()
		if uerr := m.store.UpdateRegeneration(context.WithoutCancel(ctx), &sub); uerr != nil {
			slog.WarnContext(ctx, "Failed to persist regeneration", "regeneration_id", sub.ID, "error", uerr)
		}
		return nil, err
	}

	go func() {
		defer m.unregister(sub.ID)
		_, _ = m.finishRegeneration(runCtx, panel, sub, req)
	}()
	return &snapshot, nil
}

// beginRegeneration は対象パネルを確認し、サブジョブを RUNNING で保存します。
func (m *Manager) beginRegeneration(ctx context.Context, req domain.RegenerationRequest) (*domain.GeneratedPanel, domain.RegenerationJob, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, domain.RegenerationJob{}, errShutdown
	}

	panel, err := m.store.GetPanel(ctx, req.PanelID)
	if err != nil {
		return nil, domain.RegenerationJob{}, err
	}

	now := time.Now().UTC()
	sub := domain.RegenerationJob{
		ID:          uuid.NewString(),
		ParentJobID: panel.JobID,
		PanelID:     panel.ID,
		Status:      domain.RegenerationRunning,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.store.CreateRegeneration(ctx, &sub); err != nil {
		return nil, domain.RegenerationJob{}, err
	}
	return panel, sub, nil
}

// finishRegeneration は再生成を実行し、サブジョブの最終状態を保存して通知します。
func (m *Manager) finishRegeneration(ctx context.Context, panel *domain.GeneratedPanel, sub domain.RegenerationJob, req domain.RegenerationRequest) (*RegenerationResult, error) {
	logger := slog.With("regeneration_id", sub.ID, "job_id", panel.JobID, "panel_id", panel.ID)
	start := time.Now()
	updated, runErr := m.regenerate(ctx, panel, req)

	persistCtx := context.WithoutCancel(ctx)
	ev := progress.Event{JobID: sub.ID, Timestamp: time.Now().UTC()}
	if runErr != nil {
		sub.Status = domain.RegenerationFailed
		sub.Error = runErr.Error()
		ev.Stage, ev.Status, ev.Message = domain.StagePages, progress.StatusFailed, runErr.Error()
		logger.WarnContext(ctx, "Panel regeneration failed", "error", runErr)
	} else {
		sub.Status = domain.RegenerationSucceeded
		ev.Stage, ev.Status, ev.Percent = domain.StageDone, progress.StatusCompleted, 100
		logger.InfoContext(ctx, "Panel regeneration completed",
			"seed", updated.Seed,
			"duration", time.Since(start).Round(time.Millisecond))
	}
	sub.UpdatedAt = time.Now().UTC()
	if err := m.store.UpdateRegeneration(persistCtx, &sub); err != nil {
		logger.WarnContext(ctx, "Failed to persist regeneration", "error", err)
	}
	if err := m.broker.Publish(persistCtx, progress.Topic(sub.ID), ev); err != nil {
		logger.WarnContext(ctx, "Failed to publish regeneration result", "error", err)
	}

	return &RegenerationResult{Regeneration: sub, Panel: updated}, runErr
}

// regenerate はページロックの中でパネルを作り直し、ページを合成し直して保存します。
func (m *Manager) regenerate(ctx context.Context, panel *domain.GeneratedPanel, req domain.RegenerationRequest) (*domain.GeneratedPanel, error) {
	input, err := m.store.GetJobInput(ctx, panel.JobID)
	if err != nil {
		return nil, err
	}
	pages, err := m.store.GetScript(ctx, panel.JobID)
	if err != nil {
		return nil, err
	}
	layoutName := ""
	for _, p := range pages {
		if p.PageNumber == panel.PageNumber {
			layoutName = p.Layout
			break
		}
	}
	style, err := runner.StyleFor(m.cfg, input.Chapter.Style)
	if err != nil {
		return nil, err
	}
	chars := input.CharactersMap()

	unlock, err := m.locks.Lock(ctx, pageKey(panel.JobID, panel.PageNumber))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCancellationRequested, err)
	}
	defer unlock()

	// ロック待ちの間に他の再生成が入った場合に備えて読み直します。
	current, err := m.store.GetPanel(ctx, panel.ID)
	if err != nil {
		return nil, err
	}
	desc := req.Modifications.Apply(current.Descriptor)
	adapters, err := m.runners.Design.ForPanel(ctx, chars, desc)
	if err != nil {
		return nil, err
	}

	updated, err := m.runners.Panel.Run(ctx, runner.PanelJob{
		Current:    *current,
		Descriptor: desc,
		Characters: chars,
		Adapters:   adapters,
		Style:      style,
		Seed:       req.Seed,
	})
	if err != nil {
		return nil, err
	}

	siblings, err := m.store.ListPanels(ctx, panel.JobID, panel.PageNumber)
	if err != nil {
		return nil, err
	}
	var issues []domain.LetteringIssue
	for i := range siblings {
		if siblings[i].ID == updated.ID {
			siblings[i] = *updated
		}
		issues = append(issues, siblings[i].Issues...)
	}

	composed, err := m.runners.Page.Compose(ctx, panel.PageNumber, layoutName, siblings)
	if err != nil {
		return nil, err
	}

	persistCtx := context.WithoutCancel(ctx)
	if err := m.store.SavePanel(persistCtx, *updated); err != nil {
		return nil, err
	}
	err = m.store.SavePage(persistCtx, store.PageRecord{
		JobID:      panel.JobID,
		PageNumber: panel.PageNumber,
		Layout:     composed.Layout,
		Image:      composed.Image,
		Issues:     issues,
		UpdatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
