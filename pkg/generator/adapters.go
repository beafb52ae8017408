package generator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shouni/go-manga-press/pkg/backend"
	"github.com/shouni/go-manga-press/pkg/domain"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// AdapterSet は小文字のキャラクター名からスタイルアダプターを引くマップです。
type AdapterSet map[string]backend.ActiveAdapter

// For はセリフに登場する名前の順にアダプターを返します。未登録の名前は無視します。
func (s AdapterSet) For(names []string) []backend.ActiveAdapter {
	adapters := make([]backend.ActiveAdapter, 0, len(names))
	for _, name := range names {
		if a, ok := s[strings.ToLower(name)]; ok {
			adapters = append(adapters, a)
		}
	}
	return adapters
}

// AdapterResolver は、キャラクターごとのアダプター参照を解決し、作成結果をキャッシュします。
type AdapterResolver struct {
	creator         ReferenceCreator
	defaultStrength float64
	refs            map[string]string // CharacterID -> adapter reference
	mu              sync.RWMutex
	createGroup     singleflight.Group
}

// NewAdapterResolver は AdapterResolver を初期化します。
func NewAdapterResolver(creator ReferenceCreator, defaultStrength float64) *AdapterResolver {
	return &AdapterResolver{
		creator:         creator,
		defaultStrength: defaultStrength,
		refs:            make(map[string]string),
	}
}

// Prepare は names に含まれる全キャラクターのアダプターを並列に用意します。
// 学習済みの AdapterRef があればそれを使い、なければバックエンドで参照を作成します。
func (r *AdapterResolver) Prepare(ctx context.Context, chars domain.CharactersMap, names []string) (AdapterSet, error) {
	set := make(AdapterSet, len(names))
	var setMu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)

	for _, name := range names {
		char := chars.FindCharacter(name)
		if char == nil {
			continue
		}
		eg.Go(func() error {
			ref, err := r.referenceFor(egCtx, chars, *char)
			if err != nil {
				return fmt.Errorf("キャラクター %s のアダプター準備に失敗しました: %w", char.Name, err)
			}
			strength := char.AdapterStrength
			if strength <= 0 {
				strength = r.defaultStrength
			}

			setMu.Lock()
			set[strings.ToLower(name)] = backend.ActiveAdapter{Reference: ref, Strength: strength}
			set[strings.ToLower(char.Name)] = backend.ActiveAdapter{Reference: ref, Strength: strength}
			setMu.Unlock()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return set, nil
}

// referenceFor はキャッシュを確認し、未作成の場合のみ参照を作成します。
func (r *AdapterResolver) referenceFor(ctx context.Context, chars domain.CharactersMap, char domain.Character) (string, error) {
	if char.AdapterRef != "" {
		return char.AdapterRef, nil
	}
	key := char.ID
	if key == "" {
		key = strings.ToLower(char.Name)
	}

	r.mu.RLock()
	ref, ok := r.refs[key]
	r.mu.RUnlock()
	if ok {
		return ref, nil
	}

	val, err, _ := r.createGroup.Do(key, func() (interface{}, error) {
		// singleflight で待機中に他のゴルーチンが作成を終えている可能性があるため再確認します
		r.mu.RLock()
		existing, ok := r.refs[key]
		r.mu.RUnlock()
		if ok {
			return existing, nil
		}

		created, err := r.creator.CreateCharacterReference(ctx, backend.CharacterReferenceRequest{
			Name:              char.Name,
			VisualDescription: char.VisualDescription(),
			Seed:              chars.SeedFor(char.Name),
		})
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.refs[key] = created
		r.mu.Unlock()
		return created, nil
	})
	if err != nil {
		return "", err
	}

	ref, ok = val.(string)
	if !ok {
		return "", fmt.Errorf("unexpected return type from singleflight: %T", val)
	}
	return ref, nil
}
