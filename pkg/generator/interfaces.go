package generator

import (
	"context"

	"github.com/shouni/go-manga-press/pkg/backend"
)

// PanelBackend は、前のパネルのコンテキストを受け取り1枚のパネルを生成するバックエンドの契約です。
type PanelBackend interface {
	GeneratePanel(ctx context.Context, req backend.PanelRequest) (*backend.PanelResponse, error)
}

// ReferenceCreator は、キャラクターのスタイルアダプター参照を作成します。
type ReferenceCreator interface {
	CreateCharacterReference(ctx context.Context, req backend.CharacterReferenceRequest) (string, error)
}
