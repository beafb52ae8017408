package progress

import (
	"time"

	"github.com/shouni/go-manga-press/pkg/domain"
)

// Status は進捗イベントの状態です。
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// 各工程の完了時点の進捗率です。PAGES はページの完了数に応じて pagesStart から pagesEnd まで進みます。
const (
	percentScenario   = 10.0
	percentCharacters = 30.0
	pagesStart        = 30.0
	pagesEnd          = 80.0
	percentExport     = 95.0
	percentDone       = 100.0
)

// topicPrefix は進捗チャネル名の接頭辞です。
const topicPrefix = "manga:progress:"

// Event はジョブの進捗通知1件分です。
type Event struct {
	JobID     string       `json:"job_id"`
	Stage     domain.Stage `json:"stage"`
	Current   int          `json:"current"`
	Total     int          `json:"total"`
	Status    Status       `json:"status"`
	Percent   float64      `json:"percent"`
	Message   string       `json:"message,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// Terminal は最後のイベントかどうかを返します。
func (e Event) Terminal() bool {
	return e.Status == StatusCompleted && e.Stage == domain.StageDone || e.Status == StatusFailed
}

// Topic はジョブIDに対応する購読トピック名を返します。
func Topic(jobID string) string {
	return topicPrefix + jobID
}

// StagePercent は stage が完了した時点の進捗率を返します。
func StagePercent(stage domain.Stage) float64 {
	switch stage {
	case domain.StageScenario:
		return percentScenario
	case domain.StageCharacters:
		return percentCharacters
	case domain.StagePages:
		return pagesEnd
	case domain.StageExport:
		return percentExport
	case domain.StageDone:
		return percentDone
	}
	return 0
}

// PagePercent は total ページ中 done ページが完了した時点の進捗率を返します。
func PagePercent(done, total int) float64 {
	if total <= 0 {
		return pagesEnd
	}
	if done > total {
		done = total
	}
	return pagesStart + (pagesEnd-pagesStart)*float64(done)/float64(total)
}
