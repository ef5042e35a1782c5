package command

import "context"

// LocalLock is an in-process CycleLock that honours context cancellation
// while waiting.
type LocalLock struct {
	ch chan struct{}
}

// NewLocalLock creates an unlocked LocalLock.
func NewLocalLock() *LocalLock {
	return &LocalLock{ch: make(chan struct{}, 1)}
}

// Acquire implements CycleLock.
func (l *LocalLock) Acquire(ctx context.Context) (func(), error) {
	select {
	case l.ch <- struct{}{}:
		return func() { <-l.ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ChainLock acquires several locks in order and releases them in reverse.
// Typically a LocalLock followed by a distributed lock, so that only one
// goroutine per process contends for the shared one.
type ChainLock []CycleLock

// Acquire implements CycleLock.
func (c ChainLock) Acquire(ctx context.Context) (func(), error) {
	releases := make([]func(), 0, len(c))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, l := range c {
		release, err := l.Acquire(ctx)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}
