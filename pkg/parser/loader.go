package parser

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/shouni/go-manga-press/pkg/domain"

	"github.com/shouni/go-remote-io/remoteio"
)

// Loader はローカルパスまたは gs:// や s3:// の URI から台本とキャラクター定義を読み込みます。
type Loader struct {
	reader remoteio.InputReader
}

// NewLoader は Loader を初期化します。
func NewLoader(reader remoteio.InputReader) *Loader {
	return &Loader{reader: reader}
}

// ParseFromPath は指定されたパスから台本を読み込み、拡張子に応じたパーサーで解析して返します。
func (l *Loader) ParseFromPath(ctx context.Context, path string) (*domain.Chapter, error) {
	slog.InfoContext(ctx, "台本ファイルを読み込んでいます", "path", path)
	data, err := l.read(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("台本ファイルの読み込みに失敗しました (%s): %w", path, err)
	}
	return ForPath(path).Parse(string(data))
}

// LoadCharacters は指定されたパスからキャラクター定義を読み込みます。
func (l *Loader) LoadCharacters(ctx context.Context, path string) (domain.CharactersMap, error) {
	data, err := l.read(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("キャラクターファイルの読み込みに失敗しました (%s): %w", path, err)
	}
	return domain.ParseCharacters(data)
}

func (l *Loader) read(ctx context.Context, path string) ([]byte, error) {
	rc, err := l.reader.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
