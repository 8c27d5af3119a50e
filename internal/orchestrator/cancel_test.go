package orchestrator

import (
	"context"
	"testing"

	"github.com/superfm831010/SQLBothp/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_OverlappingRegistrations(t *testing.T) {
	r := NewRegistry()

	ctx1, cancel1 := context.WithCancelCause(context.Background())
	defer cancel1(nil)
	ctx2, cancel2 := context.WithCancelCause(context.Background())
	defer cancel2(nil)

	unregister1 := r.Register(5, cancel1)
	unregister2 := r.Register(5, cancel2)

	// 先结束的调用不能注销仍在进行的调用
	unregister1()
	require.True(t, r.Cancel(5))
	assert.NoError(t, ctx1.Err())
	assert.ErrorIs(t, context.Cause(ctx2), types.ErrStopped)

	unregister2()
	assert.False(t, r.Cancel(5))
	assert.Empty(t, r.cancels)
}

func TestRegistry_CancelReachesEveryRegistration(t *testing.T) {
	r := NewRegistry()

	ctx1, cancel1 := context.WithCancelCause(context.Background())
	defer cancel1(nil)
	ctx2, cancel2 := context.WithCancelCause(context.Background())
	defer cancel2(nil)
	defer r.Register(9, cancel1)()
	defer r.Register(9, cancel2)()

	assert.False(t, r.Cancel(10))
	require.True(t, r.Cancel(9))
	assert.ErrorIs(t, context.Cause(ctx1), types.ErrStopped)
	assert.ErrorIs(t, context.Cause(ctx2), types.ErrStopped)

	// 注销顺序与登记顺序无关
	var unregister []func()
	for i := 0; i < 4; i++ {
		_, c := context.WithCancelCause(context.Background())
		defer c(nil)
		unregister = append(unregister, r.Register(11, c))
	}
	for _, i := range []int{2, 0, 3} {
		unregister[i]()
		assert.True(t, r.Cancel(11))
	}
	unregister[1]()
	assert.False(t, r.Cancel(11))
}
