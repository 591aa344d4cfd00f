package transfer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSession_InitialProgress(t *testing.T) {
	s := NewSession(4, 1, 3000)
	assert.Equal(t, 25.0, s.Progress())
	assert.Equal(t, 1, s.FilesDone())

	assert.Equal(t, 50.0, s.FileDone())
	assert.Equal(t, 75.0, s.FileDone())
	assert.Equal(t, 100.0, s.FileDone())
}

func TestSession_ProgressRoundedAndMonotonic(t *testing.T) {
	s := NewSession(3, 0, 0)
	assert.Equal(t, 33.33, s.FileDone())
	assert.Equal(t, 33.33, s.SetProgress(10))
	assert.Equal(t, 33.33, s.Progress())
}

func TestSession_ConcurrentCounters(t *testing.T) {
	s := NewSession(1, 0, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Add(1)
				_ = s.Speed()
			}
		}()
	}
	wg.Wait()

	s.SetSpeed(2048)
	assert.Equal(t, int64(1000), s.Bytes())
	assert.Equal(t, int64(2048), s.Speed())
}
