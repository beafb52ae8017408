package progress

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shouni/go-manga-press/pkg/domain"
)

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		if !ok {
			t.Fatal("購読が閉じられています")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("イベントを受信できませんでした")
	}
	return Event{}
}

func TestPagePercent(t *testing.T) {
	tests := []struct {
		done, total int
		want        float64
	}{
		{0, 4, 30},
		{1, 4, 42.5},
		{4, 4, 80},
		{5, 4, 80},
		{0, 0, 80},
	}
	for _, tt := range tests {
		if got := PagePercent(tt.done, tt.total); got != tt.want {
			t.Errorf("PagePercent(%d, %d): 期待値 %v, 実際の値 %v", tt.done, tt.total, tt.want, got)
		}
	}
	if StagePercent(domain.StageScenario) != 10 || StagePercent(domain.StageCharacters) != 30 ||
		StagePercent(domain.StageExport) != 95 || StagePercent(domain.StageDone) != 100 {
		t.Error("工程ごとの進捗率が不正です")
	}
}

func TestMemoryBroker(t *testing.T) {
	ctx := context.Background()

	t.Run("購読者全員に配信し、他のトピックには配信しないこと", func(t *testing.T) {
		b := NewMemoryBroker()
		defer b.Close()

		a, _ := b.Subscribe(ctx, Topic("job-1"))
		c, _ := b.Subscribe(ctx, Topic("job-1"))
		other, _ := b.Subscribe(ctx, Topic("job-2"))

		if err := b.Publish(ctx, Topic("job-1"), Event{JobID: "job-1", Percent: 10}); err != nil {
			t.Fatal(err)
		}
		if ev := receive(t, a); ev.Percent != 10 {
			t.Errorf("進捗率: 期待値 10, 実際の値 %v", ev.Percent)
		}
		receive(t, c)

		select {
		case ev := <-other.C:
			t.Errorf("別トピックにイベントが届きました: %+v", ev)
		default:
		}
	})

	t.Run("購読前のイベントは届かないこと", func(t *testing.T) {
		b := NewMemoryBroker()
		defer b.Close()

		_ = b.Publish(ctx, "late", Event{Percent: 10})
		sub, _ := b.Subscribe(ctx, "late")
		_ = b.Publish(ctx, "late", Event{Percent: 30})
		if ev := receive(t, sub); ev.Percent != 30 {
			t.Errorf("最初に受信するのは購読後のイベントのはずです: %+v", ev)
		}
	})

	t.Run("詰まった購読者がいても送信はブロックしないこと", func(t *testing.T) {
		b := NewMemoryBroker()
		defer b.Close()

		_, _ = b.Subscribe(ctx, "slow")
		done := make(chan struct{})
		go func() {
			for i := 0; i < subscriberBuffer*3; i++ {
				_ = b.Publish(ctx, "slow", Event{Current: i})
			}
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Publish がブロックしました")
		}
	})

	t.Run("コンテキスト終了で購読が閉じること", func(t *testing.T) {
		b := NewMemoryBroker()
		defer b.Close()

		subCtx, cancel := context.WithCancel(ctx)
		sub, _ := b.Subscribe(subCtx, "cancel")
		cancel()

		select {
		case _, ok := <-sub.C:
			if ok {
				t.Error("チャネルは閉じられているはずです")
			}
		case <-time.After(2 * time.Second):
			t.Fatal("購読が閉じられませんでした")
		}
		sub.Close()
	})
}

func TestTracker(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker()
	defer b.Close()

	sub, _ := b.Subscribe(ctx, Topic("job-9"))
	tr := NewTracker(b, "job-9")

	tr.StageCompleted(ctx, domain.StageScenario, "")
	tr.StageCompleted(ctx, domain.StageCharacters, "")
	tr.PageCompleted(ctx, 1, 2)
	// 巻き戻る値は直前の値に補正される
	tr.PageCompleted(ctx, 0, 2)
	tr.Failed(ctx, domain.StagePages, "boom")

	var got []Event
	for i := 0; i < 5; i++ {
		got = append(got, receive(t, sub))
	}

	wantPercent := []float64{10, 30, 55, 55, 55}
	for i, ev := range got {
		if ev.JobID != "job-9" {
			t.Errorf("ジョブID: 期待値 job-9, 実際の値 %s", ev.JobID)
		}
		if ev.Percent != wantPercent[i] {
			t.Errorf("イベント %d の進捗率: 期待値 %v, 実際の値 %v", i, wantPercent[i], ev.Percent)
		}
	}
	if last := got[4]; !last.Terminal() || last.Message != "boom" {
		t.Errorf("失敗イベントが不正です: %+v", last)
	}
}

// reentrantBroker は送信中に Tracker を呼び返すブローカーです。
type reentrantBroker struct {
	*MemoryBroker
	tracker *Tracker
	seen    []float64
}

func (b *reentrantBroker) Publish(ctx context.Context, topic string, ev Event) error {
	b.seen = append(b.seen, b.tracker.Percent())
	if ev.Stage == domain.StageScenario {
		b.tracker.StageCompleted(ctx, domain.StageCharacters, "from broker")
	}
	return b.MemoryBroker.Publish(ctx, topic, ev)
}

func TestTracker_PublishOutsideLock(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBroker()
	defer mem.Close()
	sub, _ := mem.Subscribe(ctx, Topic("job-10"))

	b := &reentrantBroker{MemoryBroker: mem}
	tr := NewTracker(b, "job-10")
	b.tracker = tr

	done := make(chan struct{})
	go func() {
		defer close(done)
		tr.StageCompleted(ctx, domain.StageScenario, "")
	}()

	t.Run("送信中に Tracker を呼び返してもデッドロックしないこと", func(t *testing.T) {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("送信がロックを保持したまま止まっています")
		}
	})

	t.Run("送信中に追加したイベントも順番どおりに届くこと", func(t *testing.T) {
		first, second := receive(t, sub), receive(t, sub)
		if first.Stage != domain.StageScenario || second.Stage != domain.StageCharacters {
			t.Errorf("順序: 期待値 [%s %s], 実際の値 [%s %s]", domain.StageScenario, domain.StageCharacters, first.Stage, second.Stage)
		}
		if second.Message != "from broker" {
			t.Errorf("メッセージ: 期待値 from broker, 実際の値 %q", second.Message)
		}
		if len(b.seen) != 2 {
			t.Errorf("送信回数: 期待値 2, 実際の値 %d", len(b.seen))
		}
	})
}

func TestRedisBroker(t *testing.T) {
	url := os.Getenv("MANGA_TEST_REDIS_URL")
	if url == "" {
		t.Skip("MANGA_TEST_REDIS_URL が未設定のためスキップします")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	b, err := NewRedisBroker(ctx, url)
	if err != nil {
		t.Fatalf("接続に失敗しました: %v", err)
	}
	defer b.Close()

	sub, err := b.Subscribe(ctx, Topic("redis-job"))
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	if err := b.Publish(ctx, Topic("redis-job"), Event{JobID: "redis-job", Stage: domain.StageScenario, Percent: 10}); err != nil {
		t.Fatal(err)
	}
	if ev := receive(t, sub); ev.JobID != "redis-job" || ev.Stage != domain.StageScenario {
		t.Errorf("受信したイベントが不正です: %+v", ev)
	}
}
