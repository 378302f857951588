package cache

import (
	"sync"
	"sync/atomic"
)

// Statistics tracks cache activity.
type Statistics struct {
	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	deletes   atomic.Int64
	evictions atomic.Int64

	mu          sync.RWMutex
	currentSize int64
	maxSize     int64
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{}
}

func (s *Statistics) Hit()      { s.hits.Add(1) }
func (s *Statistics) Miss()     { s.misses.Add(1) }
func (s *Statistics) Set()      { s.sets.Add(1) }
func (s *Statistics) Delete()   { s.deletes.Add(1) }
func (s *Statistics) Eviction() { s.evictions.Add(1) }

// UpdateSize records the current size and tracks the high-water mark.
func (s *Statistics) UpdateSize(size int64) {
	s.mu.Lock()
	s.currentSize = size
	if size > s.maxSize {
		s.maxSize = size
	}
	s.mu.Unlock()
}

func (s *Statistics) Hits() int64      { return s.hits.Load() }
func (s *Statistics) Misses() int64    { return s.misses.Load() }
func (s *Statistics) Sets() int64      { return s.sets.Load() }
func (s *Statistics) Deletes() int64   { return s.deletes.Load() }
func (s *Statistics) Evictions() int64 { return s.evictions.Load() }

// CurrentSize returns the last recorded size.
func (s *Statistics) CurrentSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSize
}

// HitRatio returns hits / (hits + misses), or 0 with no lookups.
func (s *Statistics) HitRatio() float64 {
	hits, misses := s.Hits(), s.Misses()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

// StatsSummary is a point-in-time copy of Statistics.
type StatsSummary struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Sets        int64   `json:"sets"`
	Deletes     int64   `json:"deletes"`
	Evictions   int64   `json:"evictions"`
	CurrentSize int64   `json:"current_size"`
	MaxSize     int64   `json:"max_size"`
	HitRatio    float64 `json:"hit_ratio"`
}

// Summary returns a snapshot of all statistics.
func (s *Statistics) Summary() StatsSummary {
	s.mu.RLock()
	current, maxSize := s.currentSize, s.maxSize
	s.mu.RUnlock()
	return StatsSummary{
		Hits:        s.Hits(),
		Misses:      s.Misses(),
		Sets:        s.Sets(),
		Deletes:     s.Deletes(),
		Evictions:   s.Evictions(),
		CurrentSize: current,
		MaxSize:     maxSize,
		HitRatio:    s.HitRatio(),
	}
}
