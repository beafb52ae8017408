package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/shouni/go-manga-press/pkg/domain"
	"github.com/shouni/go-manga-press/pkg/progress"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (h *Handler) jobProgress(c *gin.Context) {
	id := c.Param("id")
	h.stream(c, id, func(ctx context.Context) (progress.Event, error) {
		job, err := h.svc.Job(ctx, id)
		if err != nil {
			return progress.Event{}, err
		}
		return jobSnapshot(job), nil
	})
}

func (h *Handler) regenerationProgress(c *gin.Context) {
	id := c.Param("id")
	h.stream(c, id, func(ctx context.Context) (progress.Event, error) {
		sub, err := h.svc.Regeneration(ctx, id)
		if err != nil {
			return progress.Event{}, err
		}
		return regenerationSnapshot(sub), nil
	})
}

// stream は現在の状態を最初に送り、その後は終端イベントまで進捗を中継します。
// 購読は状態の取得より先に始めるため、取得と購読の間のイベントも取りこぼしません。
func (h *Handler) stream(c *gin.Context, id string, snapshot func(ctx context.Context) (progress.Event, error)) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sub, err := h.svc.Subscribe(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	defer sub.Close()

	first, err := snapshot(ctx)
	if err != nil {
		writeError(c, err)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer ws.Close()
	logger := slog.With("topic", progress.Topic(id))
	logger.InfoContext(ctx, "Progress stream connected")

	// 受信したメッセージは読み捨て、切断を検知したら中継を止めます。
	ws.SetReadLimit(512)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := writeEvent(ws, first); err != nil || first.Terminal() {
		closeNormal(ws)
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				closeNormal(ws)
				return
			}
			if ev.Percent < first.Percent && !ev.Terminal() {
				continue
			}
			if err := writeEvent(ws, ev); err != nil {
				logger.WarnContext(ctx, "Failed to write progress", "error", err)
				return
			}
			if ev.Terminal() {
				closeNormal(ws)
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func writeEvent(ws *websocket.Conn, ev progress.Event) error {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteJSON(ev)
}

func closeNormal(ws *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// jobSnapshot は保存済みのジョブから進捗イベントを組み立てます。
func jobSnapshot(job *domain.GenerationJob) progress.Event {
	status := progress.StatusRunning
	switch job.Stage {
	case domain.StageDone:
		status = progress.StatusCompleted
	case domain.StageFailed:
		status = progress.StatusFailed
	}
	return progress.Event{
		JobID:     job.ID,
		Stage:     job.Stage,
		Current:   job.LastCompletedPage,
		Total:     job.TotalPages,
		Status:    status,
		Percent:   job.Progress,
		Message:   job.Error,
		Timestamp: job.UpdatedAt,
	}
}

// regenerationSnapshot は再生成サブジョブの状態から進捗イベントを組み立てます。
func regenerationSnapshot(sub *domain.RegenerationJob) progress.Event {
	ev := progress.Event{
		JobID:     sub.ID,
		Stage:     domain.StagePages,
		Status:    progress.StatusRunning,
		Timestamp: sub.UpdatedAt,
	}
	switch sub.Status {
	case domain.RegenerationSucceeded:
		ev.Stage, ev.Status, ev.Percent = domain.StageDone, progress.StatusCompleted, 100
	case domain.RegenerationFailed:
		ev.Status, ev.Message = progress.StatusFailed, sub.Error
	}
	return ev
}
