package game

import (
	"math/rand"
	"sync"
)

// Sampler picks k distinct indices from [0, n), uniformly and without replacement.
type Sampler interface {
	Sample(n, k int) []int
}

// RandSampler draws from a seeded math/rand source using a partial Fisher-Yates shuffle.
// One RandSampler is shared by every session of an Engine, so draws are serialized.
type RandSampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandSampler(seed int64) *RandSampler {
	return &RandSampler{rng: rand.New(rand.NewSource(seed))}
}

func (s *RandSampler) Sample(n, k int) []int {
	if k <= 0 || n <= 0 {
		return nil
	}
	if k > n {
		k = n
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < k; i++ {
		j := i + s.rng.Intn(n-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx[:k]
}
