package generator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/shouni/go-manga-press/pkg/backend"
	"github.com/shouni/go-manga-press/pkg/domain"
)

type countingCreator struct {
	calls atomic.Int32
	err   error
}

func (c *countingCreator) CreateCharacterReference(ctx context.Context, req backend.CharacterReferenceRequest) (string, error) {
	c.calls.Add(1)
	if c.err != nil {
		return "", c.err
	}
	return "ref-" + req.Name, nil
}

func TestAdapterResolver_Prepare(t *testing.T) {
	chars := domain.CharactersMap{
		"aoi": {ID: "aoi", Name: "Aoi", VisualCues: []string{"blue hair"}},
		"ren": {ID: "ren", Name: "Ren", AdapterRef: "trained-ren", AdapterStrength: 0.5},
	}

	t.Run("学習済み参照を優先し、未作成分だけ作成すること", func(t *testing.T) {
		cc := &countingCreator{}
		r := NewAdapterResolver(cc, 0.8)

		set, err := r.Prepare(context.Background(), chars, []string{"Aoi", "Ren", "Unknown"})
		if err != nil {
			t.Fatalf("準備に失敗しました: %v", err)
		}
		if set["aoi"].Reference != "ref-Aoi" || set["aoi"].Strength != 0.8 {
			t.Errorf("Aoi のアダプターが不正です: %+v", set["aoi"])
		}
		if set["ren"].Reference != "trained-ren" || set["ren"].Strength != 0.5 {
			t.Errorf("Ren のアダプターが不正です: %+v", set["ren"])
		}
		if _, ok := set["unknown"]; ok {
			t.Errorf("未登録のキャラクターにアダプターが作られています")
		}

		if _, err := r.Prepare(context.Background(), chars, []string{"aoi", "Aoi"}); err != nil {
			t.Fatal(err)
		}
		if cc.calls.Load() != 1 {
			t.Errorf("作成回数: 期待値 1, 実際の値 %d", cc.calls.Load())
		}
	})

	t.Run("作成に失敗した場合はエラーを返すこと", func(t *testing.T) {
		cc := &countingCreator{err: &domain.BackendError{Op: backend.PathCharacterReference, StatusCode: 500}}
		r := NewAdapterResolver(cc, 0.8)
		if _, err := r.Prepare(context.Background(), chars, []string{"Aoi"}); !errors.Is(err, domain.ErrBackendError) {
			t.Errorf("ErrBackendError を期待しましたが %v でした", err)
		}
	})
}

func TestAdapterSet_For(t *testing.T) {
	set := AdapterSet{"aoi": {Reference: "a"}, "ren": {Reference: "r"}}
	got := set.For([]string{"Ren", "Nobody", "AOI"})
	if len(got) != 2 || got[0].Reference != "r" || got[1].Reference != "a" {
		t.Errorf("出現順のアダプター: 実際の値 %+v", got)
	}
}
