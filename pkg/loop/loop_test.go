package loop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/bifrost/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_RunPendingPreservesOrder(t *testing.T) {
	l := New()
	var got []int
	for i := 0; i < 5; i++ {
		i := i
		l.Post(func() {
			got = append(got, i)
			if i == 2 {
				l.Post(func() { got = append(got, 99) })
			}
		})
	}

	assert.Equal(t, 6, l.RunPending())
	assert.Equal(t, []int{0, 1, 2, 3, 4, 99}, got)
	assert.Equal(t, 0, l.RunPending())
}

func TestLoop_DoFromManyGoroutines(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, l.Do(ctx, func() { counter++ }))
		}()
	}
	wg.Wait()

	var final int
	require.NoError(t, l.Do(ctx, func() { final = counter }))
	assert.Equal(t, 50, final)
}

func TestLoop_Close(t *testing.T) {
	l := New()
	ran := false
	l.Post(func() { ran = true })
	l.Close()

	assert.False(t, l.Post(func() {}))
	assert.ErrorIs(t, l.Do(context.Background(), func() {}), domain.ErrClosed)

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}
	assert.True(t, ran)
}
