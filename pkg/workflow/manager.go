package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/shouni/go-manga-press/pkg/config"
	"github.com/shouni/go-manga-press/pkg/domain"
	"github.com/shouni/go-manga-press/pkg/progress"
	"github.com/shouni/go-manga-press/pkg/store"

	"github.com/google/uuid"
)

// errShutdown は Shutdown 後にジョブを開始しようとしたことを示します。
var errShutdown = errors.New("Manager は停止済みです")

// ManagerArgs は Manager の依存関係です。
type ManagerArgs struct {
	Config  config.Config
	Store   Store
	Broker  progress.Broker
	Runners Runners
}

// StartRequest はジョブ開始の入力です。
type StartRequest struct {
	ProjectID  string             `json:"project_id"`
	Chapter    domain.Chapter     `json:"chapter"`
	Characters []domain.Character `json:"characters,omitempty"`
}

// Manager は生成ジョブの工程を順に進め、実行中のジョブとページロックを管理します。
type Manager struct {
	cfg     config.Config
	store   Store
	broker  progress.Broker
	runners Runners
	locks   *pageLocks

	mu      sync.Mutex
	running map[string]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

// New は依存関係を検証して Manager を初期化します。
func New(args ManagerArgs) (*Manager, error) {
	if args.Store == nil {
		return nil, fmt.Errorf("Store は必須です")
	}
	if args.Broker == nil {
		return nil, fmt.Errorf("Broker は必須です")
	}
	r := args.Runners
	if r.Script == nil || r.Design == nil || r.Page == nil || r.Panel == nil || r.Publish == nil {
		return nil, fmt.Errorf("すべての Runner が必須です")
	}
	if args.Config.PageConcurrency < 1 {
		args.Config.PageConcurrency = 1
	}

	return &Manager{
		cfg:     args.Config,
		store:   args.Store,
		broker:  args.Broker,
		runners: args.Runners,
		locks:   newPageLocks(),
		running: make(map[string]context.CancelFunc),
	}, nil
}

// Start はジョブを作成し、非同期に実行します。返すジョブは作成時点のスナップショットです。
// 実行は呼び出し元の ctx のキャンセルを引き継がず、Cancel か Shutdown で止めます。
func (m *Manager) Start(ctx context.Context, req StartRequest) (*domain.GenerationJob, error) {
	job, input, err := m.create(ctx, req)
	if err != nil {
		return nil, err
	}
	snapshot := *job

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := m.register(job.ID, cancel); err != nil {
		cancel()
		return nil, err
	}

	go func() {
		defer m.unregister(job.ID)
		if err := m.execute(runCtx, job, input); err != nil {
			slog.WarnContext(runCtx, "Job finished with error", "job_id", job.ID, "error", err)
		}
	}()
	return &snapshot, nil
}

// Run はジョブを作成し、完了まで同期的に実行します。失敗した場合もジョブの最終状態を返します。
func (m *Manager) Run(ctx context.Context, req StartRequest) (*domain.GenerationJob, error) {
	job, input, err := m.create(ctx, req)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := m.register(job.ID, cancel); err != nil {
		cancel()
		return nil, err
	}
	defer m.unregister(job.ID)

	err = m.execute(runCtx, job, input)
	return job, err
}

// Cancel は実行中のジョブに中断を要求します。中断は協調的で、実行中のバックエンド呼び出しの扱いは設定に従います。
// 実行中でない未完了のジョブ（再起動で取り残されたもの）はその場で FAILED にします。
func (m *Manager) Cancel(ctx context.Context, jobID string) error {
	m.mu.Lock()
	cancel, ok := m.running[jobID]
	m.mu.Unlock()
	if ok {
		cancel()
		slog.InfoContext(ctx, "Cancellation requested", "job_id", jobID)
		return nil
	}

	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if err := job.Fail(domain.ErrCancellationRequested, 0); err != nil {
		return err
	}
	return m.store.UpdateJob(ctx, job)
}

// Job は保存済みのジョブを返します。
func (m *Manager) Job(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	return m.store.GetJob(ctx, jobID)
}

// Pages はジョブの合成済みページの一覧を返します。画像は含みません。
func (m *Manager) Pages(ctx context.Context, jobID string) ([]store.PageRecord, error) {
	if _, err := m.store.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return m.store.ListPages(ctx, jobID)
}

// Page は合成済みページを画像付きで返します。
func (m *Manager) Page(ctx context.Context, jobID string, pageNumber int) (*store.PageRecord, error) {
	return m.store.GetPage(ctx, jobID, pageNumber)
}

// Regeneration は再生成サブジョブを返します。
func (m *Manager) Regeneration(ctx context.Context, id string) (*domain.RegenerationJob, error) {
	return m.store.GetRegeneration(ctx, id)
}

// Subscribe はジョブまたは再生成サブジョブの進捗を購読します。
// 購読前に送られたイベントは受け取れないため、呼び出し側は保存済みの状態を先に参照してください。
func (m *Manager) Subscribe(ctx context.Context, id string) (*progress.Subscription, error) {
	return m.broker.Subscribe(ctx, progress.Topic(id))
}

// Wait は実行中のすべてのジョブの終了を待ちます。
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown は新しいジョブの受け付けを止め、実行中のジョブを中断して終了を待ちます。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	for _, cancel := range m.running {
		cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("実行中のジョブの終了待ちが中断されました: %w", ctx.Err())
	}
}

// create は入力を検証してジョブを PENDING で保存します。
func (m *Manager) create(ctx context.Context, req StartRequest) (*domain.GenerationJob, store.JobInput, error) {
	input := store.JobInput{Chapter: req.Chapter, Characters: req.Characters}
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, input, errShutdown
	}
	if len(req.Chapter.Pages) == 0 && strings.TrimSpace(req.Chapter.Synopsis) == "" {
		return nil, input, fmt.Errorf("%w: ページもあらすじもありません", domain.ErrInvalidScript)
	}

	job := domain.NewGenerationJob(uuid.NewString(), req.ProjectID)
	if err := m.store.CreateJob(ctx, job, input); err != nil {
		return nil, input, err
	}
	slog.InfoContext(ctx, "Job created", "job_id", job.ID, "project_id", job.ProjectID, "title", req.Chapter.Title)
	return job, input, nil
}

func (m *Manager) register(jobID string, cancel context.CancelFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errShutdown
	}
	m.running[jobID] = cancel
	m.wg.Add(1)
	return nil
}

func (m *Manager) unregister(jobID string) {
	m.mu.Lock()
	if cancel, ok := m.running[jobID]; ok {
		cancel()
		delete(m.running, jobID)
	}
	m.mu.Unlock()
	m.wg.Done()
}
