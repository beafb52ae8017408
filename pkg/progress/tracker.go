package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shouni/go-manga-press/pkg/domain"
)

// Tracker は1つのジョブの進捗を単調に保ちながらブローカーへ送ります。
type Tracker struct {
	broker Broker
	jobID  string
	topic  string

	mu       sync.Mutex
	percent  float64
	pending  []queued
	draining bool
}

type queued struct {
	ctx context.Context
	ev  Event
}

// NewTracker は jobID のトピックへ送る Tracker を返します。
func NewTracker(broker Broker, jobID string) *Tracker {
	return &Tracker{broker: broker, jobID: jobID, topic: Topic(jobID)}
}

// Percent は最後に送った進捗率を返します。
func (t *Tracker) Percent() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.percent
}

// StageCompleted は工程の完了を通知します。
func (t *Tracker) StageCompleted(ctx context.Context, stage domain.Stage, message string) Event {
	status := StatusRunning
	if stage == domain.StageDone {
		status = StatusCompleted
	}
	return t.emit(ctx, Event{Stage: stage, Status: status, Percent: StagePercent(stage), Message: message})
}

// PageCompleted はページの完了を通知します。
func (t *Tracker) PageCompleted(ctx context.Context, done, total int) Event {
	return t.emit(ctx, Event{
		Stage:   domain.StagePages,
		Current: done,
		Total:   total,
		Status:  StatusRunning,
		Percent: PagePercent(done, total),
	})
}

// Failed は失敗を通知します。進捗率は直前の値を維持します。
func (t *Tracker) Failed(ctx context.Context, stage domain.Stage, message string) Event {
	return t.emit(ctx, Event{Stage: stage, Status: StatusFailed, Message: message})
}

// emit は進捗率を減らさないよう補正してから送信します。
// 送信はロックの外で行い、先に送信中の呼び出しがあればその呼び出しが順番どおりに送ります。
// 送信の失敗はログに残すだけです。
func (t *Tracker) emit(ctx context.Context, ev Event) Event {
	t.mu.Lock()
	if ev.Percent < t.percent {
		ev.Percent = t.percent
	}
	t.percent = ev.Percent

	ev.JobID = t.jobID
	ev.Timestamp = time.Now().UTC()
	t.pending = append(t.pending, queued{ctx: ctx, ev: ev})
	if t.draining {
		t.mu.Unlock()
		return ev
	}
	t.draining = true
	t.mu.Unlock()

	t.drain()
	return ev
}

// drain は保留中のイベントがなくなるまで1件ずつ送信します。
func (t *Tracker) drain() {
	for {
		t.mu.Lock()
		if len(t.pending) == 0 {
			t.draining = false
			t.mu.Unlock()
			return
		}
		next := t.pending[0]
		t.pending = t.pending[1:]
		t.mu.Unlock()

		if err := t.broker.Publish(next.ctx, t.topic, next.ev); err != nil {
			slog.WarnContext(next.ctx, "Failed to publish progress", "job_id", t.jobID, "stage", next.ev.Stage, "error", err)
		}
	}
}
