package logger

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func reset() {
	log = nil
	once = sync.Once{}
	isJSON = false
}

func TestL_ConcurrentFirstUse(t *testing.T) {
	reset()
	t.Cleanup(reset)

	const n = 32
	got := make([]*zap.Logger, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			got[i] = L()
			Debug("并发初始化", zap.Int("i", i))
		}(i)
	}
	close(start)
	wg.Wait()

	require.NotNil(t, got[0])
	for _, l := range got {
		assert.Same(t, got[0], l)
	}
	assert.False(t, IsJson())
}

func TestInit_OnlyFirstConfigApplies(t *testing.T) {
	reset()
	t.Cleanup(reset)

	Init(&Config{Level: "warn", Format: "json", Output: "stdout"})
	first := L()
	Init(&Config{Level: "debug", Format: "console", Output: "stdout"})

	assert.Same(t, first, L())
	assert.True(t, IsJson())
	assert.False(t, L().Core().Enabled(zap.InfoLevel))
}
