package coalescer

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// keyQueue は1つのKeyのウィンドウを作成順に1つずつ実行する。
type keyQueue struct {
	key       Key
	capacity  int
	registrar Registrar
	ctx       context.Context
	logger    *zap.SugaredLogger
	active    *activity

	mu sync.Mutex
	// running は一括呼び出しを実行中のウィンドウ。アイドル時はnil。
	running *window
	// pending は実行待ちのウィンドウ。先頭が最も古い。
	pending []*window
}

// enqueue は項目を最後の実行待ちウィンドウに追加する。
// 追加できない場合は新しいウィンドウを作成する。
// 実行中のウィンドウが無ければ、最も古い実行待ちウィンドウの実行を開始する。
func (q *keyQueue) enqueue(itemID string) *Future {
	q.mu.Lock()
	defer q.mu.Unlock()

	var w *window
	if n := len(q.pending); n > 0 {
		if last := q.pending[n-1]; last.open && last.size() < q.capacity {
			w = last
		}
	}
	if w == nil {
		if len(q.pending) > 0 {
			q.logger.Debugw("ウィンドウが上限に達したため新しいウィンドウを作成します",
				"group", q.key.Group, "sandbox", q.key.Sandbox, "pending", len(q.pending))
		}
		w = newWindow(q.key)
		q.pending = append(q.pending, w)
	}
	f := w.add(itemID)

	if q.running == nil {
		next, ids := q.promoteLocked()
		q.active.start()
		go q.drain(next, ids)
	}
	return f
}

// promoteLocked は最も古い実行待ちウィンドウを実行中にして締め切る。
// 実行待ちが無い場合はアイドル状態にしてnilを返す。q.muを保持して呼び出すこと。
func (q *keyQueue) promoteLocked() (*window, []string) {
	if len(q.pending) == 0 {
		q.running = nil
		return nil, nil
	}
	w := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	q.running = w
	return w, w.close()
}

// drain は実行待ちのウィンドウが無くなるまで順に実行する。
func (q *keyQueue) drain(w *window, ids []string) {
	defer q.active.stop()

	for w != nil {
		w.execute(q.ctx, q.registrar, ids, q.logger)

		q.mu.Lock()
		w, ids = q.promoteLocked()
		q.mu.Unlock()
	}
	q.logger.Debugw("実行待ちのウィンドウがありません", "group", q.key.Group, "sandbox", q.key.Sandbox)
}
