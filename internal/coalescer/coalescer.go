package coalescer

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// DefaultCapacity は1つのウィンドウにまとめる項目数の上限。
const DefaultCapacity = 100

// StatusOK は項目の登録に成功したことを表すステータス。
const StatusOK = "OK"

// Key はウィンドウを直列化する単位。
type Key struct {
	// Sandbox はAPNsのサンドボックス環境かどうか。
	Sandbox bool
	// Group はアプリケーションの識別子（例: バンドル名）。
	Group string
}

// Registrar は一括登録を行う外部APIのクライアント。
type Registrar interface {
	// ExecuteBatch はitemIDsを一括で登録する。
	// 呼び出し自体の失敗はerrorで、操作全体の失敗はBulkResult.Failureで返す。
	ExecuteBatch(ctx context.Context, group string, sandbox bool, itemIDs []string) (*BulkResult, error)
}

// BulkResult は一括呼び出しの応答。
type BulkResult struct {
	// Failure は操作全体のエラー。nilでない場合Resultsは無視される。
	Failure *Failure
	// Results は項目ごとの結果。順序は問わない。
	Results []ItemResult
}

// Failure は操作全体のエラー。
type Failure struct {
	Code    int
	Status  string
	Message string
}

// ItemResult は項目1件の結果。
type ItemResult struct {
	// ItemID は結果が対応する項目ID。
	ItemID string
	// Status は結果のステータス。成功時はStatusOK。
	Status string
	// Value は成功時に発行された値。
	Value string
}

// Coalescer はKeyごとのkeyQueueを管理し、登録要求を振り分ける。
type Coalescer struct {
	registrar Registrar
	capacity  int
	ctx       context.Context
	logger    *zap.SugaredLogger

	// active は実行中のKeyを数える。Waitが使用する。
	active *activity

	mu     sync.Mutex
	queues map[Key]*keyQueue
}

// config はCoalescerの生成時設定。
type config struct {
	capacity int
	ctx      context.Context
	logger   *zap.SugaredLogger
}

// Option はCoalescerの設定を変更する関数。
type Option func(*config)

// WithCapacity はウィンドウの項目数の上限を設定する。1未満の値は無視する。
func WithCapacity(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithLogger はロガーを設定する。
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *config) { c.logger = logger }
}

// WithContext は一括呼び出しに渡すコンテキストを設定する。
// 呼び出しごとのタイムアウトは付与しない。
func WithContext(ctx context.Context) Option {
	return func(c *config) { c.ctx = ctx }
}

// New は新しいCoalescerを生成する。
func New(registrar Registrar, opts ...Option) *Coalescer {
	cfg := &config{
		capacity: DefaultCapacity,
		ctx:      context.Background(),
		logger:   zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Coalescer{
		registrar: registrar,
		capacity:  cfg.capacity,
		ctx:       cfg.ctx,
		logger:    cfg.logger,
		active:    newActivity(),
		queues:    make(map[Key]*keyQueue),
	}
}

// Register はitemIDの登録を要求し、結果を表すFutureを返す。
// 呼び出しはブロックしない。Futureは必ず成功かエラーで確定する。
func (c *Coalescer) Register(sandbox bool, group, itemID string) *Future {
	return c.queue(Key{Sandbox: sandbox, Group: group}).enqueue(itemID)
}

// queue はkeyのkeyQueueを返す。初めて使うKeyの場合は作成する。
func (c *Coalescer) queue(key Key) *keyQueue {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, ok := c.queues[key]
	if !ok {
		q = &keyQueue{
			key:       key,
			capacity:  c.capacity,
			registrar: c.registrar,
			ctx:       c.ctx,
			logger:    c.logger,
			active:    c.active,
		}
		c.queues[key] = q
	}
	return q
}

// Wait はすべてのKeyがアイドルになるかctxが終了するまで待つ。
// シャットダウン時に実行中の一括呼び出しを完了させるために使用する。
func (c *Coalescer) Wait(ctx context.Context) error {
	select {
	case <-c.active.idle():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// activity は一括呼び出しを実行中のKeyの数を数え、0になったときにチャネルを閉じる。
type activity struct {
	mu   sync.Mutex
	busy int
	// done はbusyが0の間は閉じられている。
	done chan struct{}
}

func newActivity() *activity {
	done := make(chan struct{})
	close(done)
	return &activity{done: done}
}

// start はKeyの実行開始を記録する。
func (a *activity) start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.busy == 0 {
		a.done = make(chan struct{})
	}
	a.busy++
}

// stop はKeyの実行終了を記録する。
func (a *activity) stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.busy--
	if a.busy == 0 {
		close(a.done)
	}
}

// idle は実行中のKeyが無くなったときに閉じられるチャネルを返す。
func (a *activity) idle() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.done
}
