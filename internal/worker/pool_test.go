package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// ants 的后台清理协程在 Release 后异步退出
var antsGoroutines = []goleak.Option{
	goleak.IgnoreTopFunction("github.com/panjf2000/ants/v2.(*poolCommon).purgeStaleWorkers"),
	goleak.IgnoreTopFunction("github.com/panjf2000/ants/v2.(*poolCommon).ticktock"),
	goleak.IgnoreTopFunction("github.com/panjf2000/ants/v2.(*goWorker).run.func1"),
}

func TestPool_Do(t *testing.T) {
	defer goleak.VerifyNone(t, antsGoroutines...)

	p, err := NewPool(2)
	require.NoError(t, err)
	defer p.Close(time.Second)

	v, err := Call(context.Background(), p, func(context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	boom := errors.New("boom")
	err = p.Do(context.Background(), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	err = p.Do(context.Background(), func(context.Context) error { panic("x") })
	assert.Error(t, err)
}

func TestPool_DoCancel(t *testing.T) {
	defer goleak.VerifyNone(t, antsGoroutines...)

	p, err := NewPool(1)
	require.NoError(t, err)
	defer p.Close(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err = p.Do(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPool_Submit(t *testing.T) {
	defer goleak.VerifyNone(t, antsGoroutines...)

	p, err := NewPool(4)
	require.NoError(t, err)

	var n atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit("count", func() { n.Add(1) }))
	}
	require.NoError(t, p.Close(time.Second))
	assert.Equal(t, int32(10), n.Load())
}
