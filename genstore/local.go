package genstore

import (
	"context"
	"sync"
	"time"
)

type localGen struct {
	gen       uint64
	updatedAt time.Time
}

// LocalGenStore keeps generations in-process (default).
// An optional cleanup loop prunes subjects that have not advanced for a while.
type LocalGenStore struct {
	mu     sync.RWMutex
	gens   map[string]localGen
	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

var _ GenStore = (*LocalGenStore)(nil)

func NewLocalGenStore(cleanupInterval, retention time.Duration) *LocalGenStore {
	s := &LocalGenStore{gens: make(map[string]localGen)}
	if cleanupInterval > 0 && retention > 0 {
		s.ticker = time.NewTicker(cleanupInterval)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					s.Cleanup(retention)
				case <-s.stopCh:
					return
				}
			}
		}()
	}
	return s
}

func (s *LocalGenStore) Current(_ context.Context, subject string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gens[subject].gen, nil
}

// CurrentMany reads all subjects under one read lock.
func (s *LocalGenStore) CurrentMany(_ context.Context, subjects []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(subjects))
	s.mu.RLock()
	for _, k := range subjects {
		out[k] = s.gens[k].gen
	}
	s.mu.RUnlock()
	return out, nil
}

func (s *LocalGenStore) Advance(_ context.Context, subject string, floor uint64) (uint64, error) {
	now := time.Now()
	s.mu.Lock()
	g := s.gens[subject]
	g.gen = max(g.gen, floor) + 1
	g.updatedAt = now
	s.gens[subject] = g
	s.mu.Unlock()
	return g.gen, nil
}

func (s *LocalGenStore) Forget(_ context.Context, subject string) error {
	s.mu.Lock()
	delete(s.gens, subject)
	s.mu.Unlock()
	return nil
}

func (s *LocalGenStore) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-retention)

	s.mu.Lock()
	for k, g := range s.gens {
		if g.updatedAt.Before(cutoff) {
			delete(s.gens, k)
		}
	}
	s.mu.Unlock()
}

func (s *LocalGenStore) Close(_ context.Context) error {
	s.once.Do(func() {
		if s.stopCh == nil {
			return
		}
		s.ticker.Stop()
		close(s.stopCh)
		s.wg.Wait()
	})
	return nil
}
