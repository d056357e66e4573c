package coalescer

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/nao1215/pushkin/pkg/metrics"
)

// window は1回の一括呼び出しにまとめる登録要求の集まり。
// openとitemsはkeyQueueのロックの下でのみ変更する。
// closeの後はitemsが変更されないため、executeはロックの外で実行できる。
type window struct {
	// key はウィンドウが属するKey。
	key Key
	// open は項目を追加できるかどうか。closeでfalseになる。
	open bool
	// items は項目IDごとのFuture。同じIDは同じFutureを共有する。
	items map[string]*Future
}

func newWindow(key Key) *window {
	return &window{
		key:   key,
		open:  true,
		items: make(map[string]*Future),
	}
}

// size はウィンドウ内の項目数を返す。
func (w *window) size() int {
	return len(w.items)
}

// add は項目を追加し、その結果を表すFutureを返す。
// 既に同じIDがある場合は同じFutureを返す。
func (w *window) add(itemID string) *Future {
	if !w.open {
		f := newFuture()
		f.settle("", ErrWindowClosed)
		return f
	}
	if f, ok := w.items[itemID]; ok {
		return f
	}
	f := newFuture()
	w.items[itemID] = f
	return f
}

// close はウィンドウへの追加を締め切り、送信する項目IDを昇順で返す。
// 昇順にするのは送信内容を再現可能にするためで、外部APIの要件ではない。
func (w *window) close() []string {
	w.open = false
	ids := make([]string, 0, len(w.items))
	for id := range w.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// execute は一括呼び出しを1回だけ行い、すべての項目の結果を確定させる。
// 呼び出しがパニックした場合は未確定の項目を*TransportErrorで確定させる。
func (w *window) execute(ctx context.Context, registrar Registrar, ids []string, logger *zap.SugaredLogger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorw("一括登録の呼び出しでパニックが発生しました", "group", w.key.Group, "sandbox", w.key.Sandbox, "panic", r)
			w.rejectAll(&TransportError{Key: w.key, Err: fmt.Errorf("panic: %v", r)}, metrics.OutcomeTransportError)
		}
	}()

	sandbox := strconv.FormatBool(w.key.Sandbox)
	metrics.WindowsDispatched.WithLabelValues(sandbox).Inc()
	metrics.WindowSize.Observe(float64(len(ids)))

	logger.Infow("一括登録を実行します", "group", w.key.Group, "sandbox", w.key.Sandbox, "items", len(ids))

	start := time.Now()
	result, err := registrar.ExecuteBatch(ctx, w.key.Group, w.key.Sandbox, ids)
	metrics.RegistrarLatency.WithLabelValues(sandbox).Observe(time.Since(start).Seconds())

	if err == nil && result == nil {
		err = errEmptyResult
	}
	if err != nil {
		logger.Errorw("一括登録の呼び出しに失敗しました", "group", w.key.Group, "sandbox", w.key.Sandbox, "error", err)
		w.rejectAll(&TransportError{Key: w.key, Err: err}, metrics.OutcomeTransportError)
		return
	}

	if f := result.Failure; f != nil {
		logger.Errorw("一括登録が全体エラーを返しました",
			"group", w.key.Group, "sandbox", w.key.Sandbox, "code", f.Code, "status", f.Status, "message", f.Message)
		w.rejectAll(&OverallOperationError{Code: f.Code, Status: f.Status, Message: f.Message}, metrics.OutcomeOverallError)
		return
	}

	byID := make(map[string]ItemResult, len(result.Results))
	for _, r := range result.Results {
		if _, dup := byID[r.ItemID]; !dup {
			byID[r.ItemID] = r
		}
	}

	failed := 0
	for id, f := range w.items {
		r, ok := byID[id]
		switch {
		case !ok:
			f.settle("", &ItemNotFoundError{ItemID: id})
			metrics.ItemsSettled.WithLabelValues(metrics.OutcomeNotFound).Inc()
		case r.Status != StatusOK:
			f.settle("", &ItemStatusError{ItemID: id, Status: r.Status})
			metrics.ItemsSettled.WithLabelValues(metrics.OutcomeStatusError).Inc()
		case r.Value == "":
			f.settle("", &ItemPayloadMissingError{ItemID: id})
			metrics.ItemsSettled.WithLabelValues(metrics.OutcomePayloadMissing).Inc()
		default:
			f.settle(r.Value, nil)
			metrics.ItemsSettled.WithLabelValues(metrics.OutcomeFulfilled).Inc()
			continue
		}
		failed++
	}

	if failed > 0 {
		logger.Warnw("一括登録で失敗した項目があります", "group", w.key.Group, "sandbox", w.key.Sandbox, "failed", failed, "items", len(ids))
		return
	}
	logger.Infow("一括登録が完了しました", "group", w.key.Group, "sandbox", w.key.Sandbox, "items", len(ids))
}

// rejectAll は未確定のすべての項目を同じエラーで確定させる。
func (w *window) rejectAll(err error, outcome string) {
	settled := 0
	for _, f := range w.items {
		if f.settle("", err) {
			settled++
		}
	}
	metrics.ItemsSettled.WithLabelValues(outcome).Add(float64(settled))
}
