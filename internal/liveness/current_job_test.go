package liveness

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCurrentJobZeroValueIsEmpty(t *testing.T) {
	var current CurrentJob

	_, ok := current.Load()
	require.False(t, ok)
}

func TestCurrentJobSetAndClear(t *testing.T) {
	var current CurrentJob
	ref := JobRef{ID: uuid.New(), StartedAt: time.Now()}

	current.Set(ref)
	got, ok := current.Load()
	require.True(t, ok)
	require.Equal(t, ref, got)

	current.Clear()
	_, ok = current.Load()
	require.False(t, ok)
}

func TestCurrentJobConcurrentReadsSeeWholeValues(t *testing.T) {
	var current CurrentJob

	refs := []JobRef{
		{ID: uuid.New(), StartedAt: time.Unix(1, 0)},
		{ID: uuid.New(), StartedAt: time.Unix(2, 0)},
	}
	valid := map[JobRef]bool{refs[0]: true, refs[1]: true}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if i%3 == 2 {
				current.Clear()
				continue
			}
			current.Set(refs[i%2])
		}
	}()

	for range 10_000 {
		if got, ok := current.Load(); ok {
			require.True(t, valid[got], "torn read: %+v", got)
		}
	}

	close(stop)
	wg.Wait()
}
