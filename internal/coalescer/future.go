package coalescer

import (
	"context"
	"sync"
)

// Future は1件の登録要求の結果。結果は一度だけ確定する。
type Future struct {
	done  chan struct{}
	once  sync.Once
	value string
	err   error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// settle は結果を確定させ、この呼び出しで確定した場合にtrueを返す。
// 2回目以降の呼び出しは無視される。
func (f *Future) settle(value string, err error) bool {
	settled := false
	f.once.Do(func() {
		f.value, f.err = value, err
		close(f.done)
		settled = true
	})
	return settled
}

// Done は結果が確定したときに閉じられるチャネルを返す。
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait は結果が確定するかctxが終了するまで待つ。
// ctxが先に終了した場合もウィンドウからは取り除かれず、結果は後で確定する。
func (f *Future) Wait(ctx context.Context) (string, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Result は確定した結果を返す。未確定の場合はErrNotSettledを返す。
func (f *Future) Result() (string, error) {
	select {
	case <-f.done:
		return f.value, f.err
	default:
		return "", ErrNotSettled
	}
}
