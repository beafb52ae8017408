package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/shouni/go-manga-press/pkg/domain"

	"github.com/shouni/go-http-kit/httpkit"
	"github.com/shouni/netarmor/retry"
	"golang.org/x/time/rate"
)

const maxReplyBytes = 64 << 20

// Options は Client の動作設定です。
type Options struct {
	Endpoint       string
	Timeout        time.Duration // 1回の呼び出しの上限時間
	MaxAttempts    int           // タイムアウト時の最大試行回数
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Limiter        *rate.Limiter // nil の場合は制限しません
	// AbortInFlight が true の場合、キャンセル時に実行中の呼び出しも打ち切ります。
	// false の場合は実行中の呼び出しを最後まで待ち、次の試行だけを止めます。
	AbortInFlight bool
	HTTPClient    httpkit.Doer // nil の場合は httpkit の標準クライアントを使います
}

// Client は生成バックエンドとの型付き JSON 通信を担います。
type Client struct {
	endpoint string
	opts     Options
	http     *httpkit.Client
}

// New は Client を初期化します。
func New(opts Options) (*Client, error) {
	endpoint := strings.TrimRight(opts.Endpoint, "/")
	if endpoint == "" {
		return nil, fmt.Errorf("バックエンドのエンドポイントは必須です")
	}
	if opts.Timeout <= 0 {
		return nil, fmt.Errorf("バックエンドのタイムアウトは正の値である必要があります")
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		opts.MaxBackoff = opts.InitialBackoff
	}
	// 呼び出しごとの期限は ctx で管理するため、クライアント自体の期限は試行全体を覆う長さにします。
	clientOpts := []httpkit.ClientOption{
		httpkit.WithSkipNetworkValidation(true),
		httpkit.WithMaxRetries(uint64(opts.MaxAttempts)),
		httpkit.WithInitialInterval(opts.InitialBackoff),
		httpkit.WithMaxInterval(opts.MaxBackoff),
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, httpkit.WithHTTPClient(opts.HTTPClient))
	}
	hc := httpkit.New(opts.Timeout*2, clientOpts...)
	return &Client{endpoint: endpoint, opts: opts, http: hc}, nil
}

// GeneratePanel は前のパネルのコンテキストを引き継いでパネルを1枚生成します。
func (c *Client) GeneratePanel(ctx context.Context, req PanelRequest) (*PanelResponse, error) {
	if len(req.PreviousContext) == 0 {
		req.PreviousContext = json.RawMessage("null")
	}
	if req.ActiveAdapters == nil {
		req.ActiveAdapters = []ActiveAdapter{}
	}

	var reply panelReply
	if err := c.call(ctx, PathStoryGenerate, req, &reply); err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return nil, &domain.BackendError{Op: PathStoryGenerate, Message: reply.Error}
	}

	img, err := decodeImage(reply.Image)
	if err != nil {
		return nil, &domain.BackendError{Op: PathStoryGenerate, Message: "image フィールドが不正です", Err: err}
	}
	if reply.Seed == nil {
		return nil, &domain.BackendError{Op: PathStoryGenerate, Message: "seed フィールドがありません"}
	}

	raw := reply.Context
	if len(raw) == 0 {
		raw = reply.Embeddings
	}
	return &PanelResponse{
		Image:   img,
		Context: domain.NewConsistencyContext(raw),
		Seed:    *reply.Seed,
	}, nil
}

// ComposePage はパネル画像群の合成をバックエンドに依頼します。
func (c *Client) ComposePage(ctx context.Context, req ComposeRequest) (*ComposeResponse, error) {
	wire := composeWire{
		Panels:   make([]string, len(req.Panels)),
		Layout:   req.Layout,
		PageSize: req.PageSize,
		Margins:  req.Margins,
		Gutter:   req.Gutter,
	}
	for i, p := range req.Panels {
		wire.Panels[i] = base64.StdEncoding.EncodeToString(p)
	}

	var reply composeReply
	if err := c.call(ctx, PathComposePage, wire, &reply); err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return nil, &domain.BackendError{Op: PathComposePage, Message: reply.Error}
	}
	img, err := decodeImage(reply.ComposedImage)
	if err != nil {
		return nil, &domain.BackendError{Op: PathComposePage, Message: "composed_image フィールドが不正です", Err: err}
	}
	if reply.Layout == nil {
		return nil, &domain.BackendError{Op: PathComposePage, Message: "layout フィールドがありません"}
	}
	return &ComposeResponse{Image: img, Layout: *reply.Layout}, nil
}

// CreateCharacterReference はキャラクターの参照アダプターを作成し、その参照を返します。
func (c *Client) CreateCharacterReference(ctx context.Context, req CharacterReferenceRequest) (string, error) {
	var reply characterReferenceReply
	if err := c.call(ctx, PathCharacterReference, req, &reply); err != nil {
		return "", err
	}
	if reply.Error != "" {
		return "", &domain.BackendError{Op: PathCharacterReference, Message: reply.Error}
	}
	if strings.TrimSpace(reply.Reference) == "" {
		return "", &domain.BackendError{Op: PathCharacterReference, Message: "reference フィールドがありません"}
	}
	return reply.Reference, nil
}

// call はタイムアウト時のみバックオフ付きで再試行しながら POST を実行します。
// 再試行の判断は呼び出し元の ctx に従い、キャンセル後は新しい試行を始めません。
func (c *Client) call(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)
	}

	attempt := 0
	var lastErr error
	// 試行回数の上限は retryable で判定します。
	retryable := func(err error) bool {
		return attempt < c.opts.MaxAttempts && c.shouldRetry(ctx, err)
	}
	op := func() error {
		if err := c.wait(ctx); err != nil {
			lastErr = err
			return err
		}
		attempt++
		lastErr = c.do(ctx, path, payload, out)
		if lastErr != nil && retryable(lastErr) {
			slog.WarnContext(ctx, "Backend call timed out, retrying",
				"path", path,
				"attempt", attempt)
		}
		return lastErr
	}

	if c.opts.MaxAttempts == 1 {
		_ = op()
	} else {
		_ = retry.Do(ctx, c.http.RetryConfig, "POST "+path, op, retryable)
	}

	if lastErr == nil {
		return nil
	}
	if ctx.Err() != nil && !errors.Is(lastErr, domain.ErrCancellationRequested) {
		return fmt.Errorf("%w: %v", domain.ErrCancellationRequested, ctx.Err())
	}
	return lastErr
}

// shouldRetry はタイムアウトだけを再試行の対象にします。呼び出し元がキャンセルした後は再試行しません。
func (c *Client) shouldRetry(ctx context.Context, err error) bool {
	return ctx.Err() == nil && domain.IsRetryable(err)
}

func (c *Client) wait(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", domain.ErrCancellationRequested, ctx.Err())
	}
	if c.opts.Limiter == nil {
		return nil
	}
	if err := c.opts.Limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCancellationRequested, err)
	}
	return nil
}

// do は1回分の POST を実行します。AbortInFlight が false の場合、呼び出し元のキャンセルは実行中の通信に伝えません。
func (c *Client) do(ctx context.Context, path string, payload []byte, out any) error {
	reqCtx := ctx
	if !c.opts.AbortInFlight {
		reqCtx = context.WithoutCancel(ctx)
	}
	callCtx, cancel := context.WithTimeout(reqCtx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("リクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return c.classify(reqCtx, callCtx, path, err)
	}

	data, err := httpkit.HandleLimitedResponse(resp, maxReplyBytes)
	if err != nil {
		return c.classify(reqCtx, callCtx, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &domain.BackendError{
			Op:         path,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(data),
			Timeout:    resp.StatusCode == http.StatusGatewayTimeout || resp.StatusCode == http.StatusRequestTimeout,
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &domain.BackendError{Op: path, StatusCode: resp.StatusCode, Message: "応答JSONが不正です", Err: err}
	}
	return nil
}

// classify は通信エラーをキャンセル、タイムアウト、その他の失敗に振り分けます。
func (c *Client) classify(parent, callCtx context.Context, path string, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("%w: %v", domain.ErrCancellationRequested, parent.Err())
	}
	var netErr net.Error
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &domain.BackendError{Op: path, Timeout: true, Message: fmt.Sprintf("%s を超えました", c.opts.Timeout)}
	}
	return &domain.BackendError{Op: path, Err: err}
}

// errorMessage はエラー応答の本文から表示用のメッセージを取り出します。
func errorMessage(data []byte) string {
	var payload struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Detail != "" {
			return payload.Detail
		}
	}
	msg := strings.TrimSpace(string(data))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

// decodeImage は base64（data URL 形式も可）を復号し、画像として解釈できるか検証します。
func decodeImage(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, fmt.Errorf("画像データが空です")
	}
	if i := strings.Index(encoded, ";base64,"); i >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[i+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("base64 の復号に失敗しました: %w", err)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("画像として解釈できません: %w", err)
	}
	return data, nil
}
