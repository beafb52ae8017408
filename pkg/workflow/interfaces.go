package workflow

import (
	"context"

	"github.com/shouni/go-manga-press/pkg/domain"
	"github.com/shouni/go-manga-press/pkg/generator"
	"github.com/shouni/go-manga-press/pkg/layout"
	"github.com/shouni/go-manga-press/pkg/publisher"
	"github.com/shouni/go-manga-press/pkg/runner"
	"github.com/shouni/go-manga-press/pkg/store"
)

// ScriptRunner は、台本を正規化し、生成順に並んだページ群にする責務を持ちます。
type ScriptRunner interface {
	Run(ctx context.Context, chapter domain.Chapter, chars domain.CharactersMap) ([]domain.PageScript, error)
}

// DesignRunner は、セリフに登場するキャラクターのスタイルアダプターを用意する責務を持ちます。
type DesignRunner interface {
	Run(ctx context.Context, chars domain.CharactersMap, pages []domain.PageScript) (generator.AdapterSet, error)
	ForPanel(ctx context.Context, chars domain.CharactersMap, panel domain.PanelDescriptor) (generator.AdapterSet, error)
}

// PageRunner は、1ページ分のパネルを生成・写植し、ページに合成する責務を持ちます。
type PageRunner interface {
	Run(ctx context.Context, job runner.PageJob) (*runner.PageOutput, error)
	Compose(ctx context.Context, pageNumber int, layoutName string, panels []domain.GeneratedPanel) (*layout.ComposedPage, error)
}

// PanelRunner は、1パネルだけを作り直して写植する責務を持ちます。
type PanelRunner interface {
	Run(ctx context.Context, job runner.PanelJob) (*domain.GeneratedPanel, error)
}

// PublishRunner は、完成したページ群を成果物として書き出す責務を持ちます。
type PublishRunner interface {
	Run(ctx context.Context, m publisher.Manuscript) (publisher.PublishResult, error)
}

// Runners は工程ごとの Runner の組です。
type Runners struct {
	Script  ScriptRunner
	Design  DesignRunner
	Page    PageRunner
	Panel   PanelRunner
	Publish PublishRunner
}

// Store はジョブ、ページ、パネル、再生成サブジョブの永続化先です。
type Store interface {
	CreateJob(ctx context.Context, job *domain.GenerationJob, input store.JobInput) error
	UpdateJob(ctx context.Context, job *domain.GenerationJob) error
	GetJob(ctx context.Context, id string) (*domain.GenerationJob, error)
	ListJobs(ctx context.Context, limit int) ([]*domain.GenerationJob, error)
	GetJobInput(ctx context.Context, id string) (*store.JobInput, error)
	SaveScript(ctx context.Context, jobID string, pages []domain.PageScript) error
	GetScript(ctx context.Context, jobID string) ([]domain.PageScript, error)

	SavePage(ctx context.Context, page store.PageRecord) error
	GetPage(ctx context.Context, jobID string, pageNumber int) (*store.PageRecord, error)
	ListPages(ctx context.Context, jobID string) ([]store.PageRecord, error)

	SavePanel(ctx context.Context, p domain.GeneratedPanel) error
	SavePanels(ctx context.Context, panels []domain.GeneratedPanel) error
	GetPanel(ctx context.Context, id string) (*domain.GeneratedPanel, error)
	ListPanels(ctx context.Context, jobID string, pageNumber int) ([]domain.GeneratedPanel, error)

	CreateRegeneration(ctx context.Context, r *domain.RegenerationJob) error
	UpdateRegeneration(ctx context.Context, r *domain.RegenerationJob) error
	GetRegeneration(ctx context.Context, id string) (*domain.RegenerationJob, error)
}
