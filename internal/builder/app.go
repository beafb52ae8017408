package builder

import (
	"errors"
	"io"

	"github.com/shouni/go-manga-press/internal/config"
	pkgconfig "github.com/shouni/go-manga-press/pkg/config"
	"github.com/shouni/go-manga-press/pkg/layout"
	"github.com/shouni/go-manga-press/pkg/progress"
	"github.com/shouni/go-manga-press/pkg/runner"
	"github.com/shouni/go-manga-press/pkg/store"
	"github.com/shouni/go-manga-press/pkg/workflow"

	"github.com/shouni/go-remote-io/remoteio"
)

// AppContext は、アプリケーション実行に必要な共通コンテキストを保持する
// これを各コマンドに渡すことで、依存関係の注入を簡素化します。
type AppContext struct {
	Config   pkgconfig.Config          // Configは、設定ファイルと環境変数から読み込まれた設定です。
	Options  config.GenerateOptions    // Optionsは、コマンドラインから渡された実行時の設定です。
	Store    *store.Store              // Storeは、ジョブとページを保存する SQLite ストアです。
	Broker   progress.Broker           // Brokerは、進捗イベントの配信先です。
	Geometry layout.Geometry           // Geometryは、ページの寸法と割り付けの規則です。
	Script   *runner.MangaScriptRunner // Scriptは、台本の読み込みと正規化を担います。
	Manager  *workflow.Manager         // Managerは、生成ジョブの実行を管理します。
	Reader   remoteio.InputReader      // Readerは、ローカルまたはクラウドストレージからの読み込みを担います。
	Writer   remoteio.OutputWriter     // Writerは、成果物の書き込みを担います。

	ioCloser io.Closer
}

// Close は保持しているリソースを解放します。
func (a *AppContext) Close() error {
	var errs []error
	if a.Broker != nil {
		errs = append(errs, a.Broker.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.ioCloser != nil {
		errs = append(errs, a.ioCloser.Close())
	}
	return errors.Join(errs...)
}
