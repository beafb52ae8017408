package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shouni/go-manga-press/pkg/backend"
	"github.com/shouni/go-manga-press/pkg/domain"
	"github.com/shouni/go-manga-press/pkg/prompts"
)

// fakeBackend は呼び出し順と受け取ったコンテキストを記録するテストダブルです。
type fakeBackend struct {
	mu       sync.Mutex
	requests []backend.PanelRequest
	failAt   int   // 何回目の呼び出しで失敗するか（1始まり、0は失敗しない）
	failErr  error // failAt で返すエラー
	onCall   func(n int)
}

func (f *fakeBackend) GeneratePanel(ctx context.Context, req backend.PanelRequest) (*backend.PanelResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	n := len(f.requests)
	f.mu.Unlock()

	if f.onCall != nil {
		f.onCall(n)
	}
	if f.failAt == n {
		return nil, f.failErr
	}
	return &backend.PanelResponse{
		Image:   []byte(fmt.Sprintf("image-%d", n)),
		Context: domain.NewConsistencyContext(json.RawMessage(fmt.Sprintf(`{"ctx":%d}`, n))),
		Seed:    req.Seed,
	}, nil
}

func newTestSequencer(t *testing.T, b PanelBackend) (*Sequencer, *ContextCache) {
	t.Helper()
	pb, err := prompts.NewImagePromptBuilder()
	if err != nil {
		t.Fatal(err)
	}
	cache := NewContextCache(time.Hour)
	return NewSequencer(b, pb, cache), cache
}

func threePanels() []domain.PanelDescriptor {
	return []domain.PanelDescriptor{
		{PanelNumber: 1, Type: domain.PanelTypeEstablishingShot, Description: "harbor"},
		{PanelNumber: 2, Type: domain.PanelTypeDialogue, Description: "pier", Dialogue: []domain.DialogueLine{{Character: "Aoi", Text: "hi"}}},
		{PanelNumber: 3, Type: domain.PanelTypeCloseUp, Description: "smile"},
	}
}

func TestSequencer_GeneratePage(t *testing.T) {
	t.Run("番号順に生成しコンテキストを連鎖させること", func(t *testing.T) {
		fb := &fakeBackend{}
		seq, cache := newTestSequencer(t, fb)
		adapters := AdapterSet{"aoi": {Reference: "adapter-aoi", Strength: 0.8}}

		res, err := seq.GeneratePage(context.Background(), PageRequest{
			JobID: "job", PageNumber: 1, Panels: threePanels(), Adapters: adapters, BaseSeed: 100,
		})
		if err != nil {
			t.Fatalf("生成に失敗しました: %v", err)
		}
		if len(res.Panels) != 3 || res.FailedPanel != 0 {
			t.Fatalf("パネル数: 期待値 3, 実際の値 %d", len(res.Panels))
		}

		if string(fb.requests[0].PreviousContext) != "null" {
			t.Errorf("パネル1のコンテキストは空であるべきです: %s", fb.requests[0].PreviousContext)
		}
		for k := 1; k < len(fb.requests); k++ {
			want := fmt.Sprintf(`{"ctx":%d}`, k)
			if got := string(fb.requests[k].PreviousContext); got != want {
				t.Errorf("パネル%d のコンテキスト: 期待値 %s, 実際の値 %s", k+1, want, got)
			}
		}
		for i, p := range res.Panels {
			if p.PanelNumber != i+1 {
				t.Errorf("生成順: 期待値 %d, 実際の値 %d", i+1, p.PanelNumber)
			}
			if p.Seed != 100+int64(i+1) {
				t.Errorf("シード: 期待値 %d, 実際の値 %d", 100+i+1, p.Seed)
			}
		}
		if string(res.FinalContext.Raw()) != `{"ctx":3}` {
			t.Errorf("最終コンテキスト: 実際の値 %s", res.FinalContext.Raw())
		}

		if len(fb.requests[1].ActiveAdapters) != 1 || fb.requests[1].ActiveAdapters[0].Reference != "adapter-aoi" {
			t.Errorf("セリフの話者のアダプターが付与されていません: %+v", fb.requests[1].ActiveAdapters)
		}
		if len(fb.requests[0].ActiveAdapters) != 0 {
			t.Errorf("話者のいないパネルにアダプターが付与されています: %+v", fb.requests[0].ActiveAdapters)
		}

		prev, ok := cache.Preceding(res.Panels[2].ID)
		if !ok || string(prev.Raw()) != `{"ctx":2}` {
			t.Errorf("パネル3の直前コンテキストが保存されていません: %v %s", ok, prev.Raw())
		}
		if got := string(res.Panels[2].PrecedingContext.Raw()); got != `{"ctx":2}` {
			t.Errorf("パネル3の PrecedingContext: 期待値 {\"ctx\":2}, 実際の値 %s", got)
		}
	})

	t.Run("失敗したパネル以降を中断し、それ以前の結果を保持すること", func(t *testing.T) {
		fb := &fakeBackend{failAt: 2, failErr: &domain.BackendError{Op: backend.PathStoryGenerate, Timeout: true}}
		seq, _ := newTestSequencer(t, fb)

		res, err := seq.GeneratePage(context.Background(), PageRequest{JobID: "job", PageNumber: 4, Panels: threePanels()})
		if !errors.Is(err, domain.ErrBackendTimeout) {
			t.Fatalf("ErrBackendTimeout を期待しましたが %v でした", err)
		}
		if n, ok := FailedPanel(err); !ok || n != 2 {
			t.Errorf("失敗パネル: 期待値 2, 実際の値 %d", n)
		}
		if len(fb.requests) != 2 {
			t.Errorf("呼び出し回数: 期待値 2, 実際の値 %d", len(fb.requests))
		}
		if len(res.Panels) != 1 || res.Panels[0].PanelNumber != 1 || res.FailedPanel != 2 {
			t.Errorf("部分結果が不正です: %+v", res)
		}
	})

	t.Run("キャンセル後は新しい呼び出しを行わないこと", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		fb := &fakeBackend{onCall: func(n int) {
			if n == 1 {
				cancel()
			}
		}}
		seq, _ := newTestSequencer(t, fb)

		res, err := seq.GeneratePage(ctx, PageRequest{JobID: "job", PageNumber: 1, Panels: threePanels()})
		if !errors.Is(err, domain.ErrCancellationRequested) {
			t.Fatalf("ErrCancellationRequested を期待しましたが %v でした", err)
		}
		if len(fb.requests) != 1 || len(res.Panels) != 1 {
			t.Errorf("実行中の呼び出しだけが完了するべきです: calls=%d panels=%d", len(fb.requests), len(res.Panels))
		}
	})

	t.Run("昇順でないパネルは拒否すること", func(t *testing.T) {
		seq, _ := newTestSequencer(t, &fakeBackend{})
		panels := threePanels()
		panels[0], panels[1] = panels[1], panels[0]
		if _, err := seq.GeneratePage(context.Background(), PageRequest{Panels: panels}); !errors.Is(err, domain.ErrInvalidScript) {
			t.Errorf("ErrInvalidScript を期待しましたが %v でした", err)
		}
	})
}

func TestSequencer_RegeneratePanel(t *testing.T) {
	fb := &fakeBackend{}
	seq, cache := newTestSequencer(t, fb)
	res, err := seq.GeneratePage(context.Background(), PageRequest{JobID: "job", PageNumber: 1, Panels: threePanels(), BaseSeed: 10})
	if err != nil {
		t.Fatal(err)
	}

	t.Run("保存済みの直前コンテキストで1回だけ呼び出すこと", func(t *testing.T) {
		target := res.Panels[1]
		desc := target.Descriptor
		desc.Description = "pier at night"

		before := len(fb.requests)
		out, err := seq.RegeneratePanel(context.Background(), RegenerateRequest{Current: target, Descriptor: desc})
		if err != nil {
			t.Fatalf("再生成に失敗しました: %v", err)
		}
		if len(fb.requests) != before+1 {
			t.Fatalf("呼び出し回数: 期待値 1, 実際の値 %d", len(fb.requests)-before)
		}
		last := fb.requests[len(fb.requests)-1]
		if string(last.PreviousContext) != `{"ctx":1}` {
			t.Errorf("直前コンテキスト: 期待値 {\"ctx\":1}, 実際の値 %s", last.PreviousContext)
		}
		if out.ID != target.ID || out.PanelNumber != 2 || out.Seed != target.Seed+1 {
			t.Errorf("置き換えパネルが不正です: %+v", out)
		}
		if out.Descriptor.Description != "pier at night" {
			t.Errorf("変更が反映されていません: %s", out.Descriptor.Description)
		}
	})

	t.Run("シードを指定できること", func(t *testing.T) {
		seed := int64(999)
		out, err := seq.RegeneratePanel(context.Background(), RegenerateRequest{Current: res.Panels[2], Descriptor: res.Panels[2].Descriptor, Seed: &seed})
		if err != nil || out.Seed != 999 {
			t.Errorf("シード: 期待値 999, 実際の値 %d (%v)", out.Seed, err)
		}
	})

	t.Run("キャッシュが失効していても保存済みのコンテキストを使うこと", func(t *testing.T) {
		fresh, _ := newTestSequencer(t, fb)
		if _, err := fresh.RegeneratePanel(context.Background(), RegenerateRequest{Current: res.Panels[2], Descriptor: res.Panels[2].Descriptor}); err != nil {
			t.Fatalf("再生成に失敗しました: %v", err)
		}
		if got := string(fb.requests[len(fb.requests)-1].PreviousContext); got != `{"ctx":2}` {
			t.Errorf("直前コンテキスト: 期待値 {\"ctx\":2}, 実際の値 %s", got)
		}
	})

	t.Run("コンテキストが失われていればエラーになること", func(t *testing.T) {
		cache.Forget(res.Panels[2].ID)
		current := res.Panels[2]
		current.PrecedingContext = domain.ConsistencyContext{}
		_, err := seq.RegeneratePanel(context.Background(), RegenerateRequest{Current: current, Descriptor: current.Descriptor})
		if !errors.Is(err, domain.ErrContextUnavailable) {
			t.Errorf("ErrContextUnavailable を期待しましたが %v でした", err)
		}
	})

	t.Run("パネル1は空のコンテキストで再生成できること", func(t *testing.T) {
		cache.Forget(res.Panels[0].ID)
		if _, err := seq.RegeneratePanel(context.Background(), RegenerateRequest{Current: res.Panels[0], Descriptor: res.Panels[0].Descriptor}); err != nil {
			t.Errorf("再生成に失敗しました: %v", err)
		}
		if got := string(fb.requests[len(fb.requests)-1].PreviousContext); got != "null" {
			t.Errorf("直前コンテキスト: 期待値 null, 実際の値 %s", got)
		}
	})
}
