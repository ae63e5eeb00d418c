package domain

import (
	"sync/atomic"
	"time"
)

// Stats tracks redirect outcomes lock-free; the hot path only does atomic
// adds.
type Stats struct {
	total       atomic.Uint64
	success     atomic.Uint64
	notFound    atomic.Uint64
	expired     atomic.Uint64
	serverError atomic.Uint64
	badRequest  atomic.Uint64

	latencyNs atomic.Uint64
	cacheHits atomic.Uint64
	lookups   atomic.Uint64
}

// Snapshot is a point-in-time view for the admin surface.
type Snapshot struct {
	Total        uint64  `json:"total"`
	Success      uint64  `json:"success"`
	NotFound     uint64  `json:"notFound"`
	Expired      uint64  `json:"expired"`
	ServerError  uint64  `json:"serverError"`
	BadRequest   uint64  `json:"badRequest"`
	AvgLatencyMs float64 `json:"avgLatencyMs"`
	CacheHitRate float64 `json:"cacheHitRate"`
}

func (s *Stats) record(status int, latency time.Duration, cacheHit bool) {
	s.total.Add(1)
	s.latencyNs.Add(uint64(latency.Nanoseconds()))
	switch {
	case status == 301:
		s.success.Add(1)
	case status == 404:
		s.notFound.Add(1)
	case status == 410:
		s.expired.Add(1)
	case status == 400:
		s.badRequest.Add(1)
	default:
		s.serverError.Add(1)
	}
	s.lookups.Add(1)
	if cacheHit {
		s.cacheHits.Add(1)
	}
}

func (s *Stats) Snapshot() Snapshot {
	snap := Snapshot{
		Total:       s.total.Load(),
		Success:     s.success.Load(),
		NotFound:    s.notFound.Load(),
		Expired:     s.expired.Load(),
		ServerError: s.serverError.Load(),
		BadRequest:  s.badRequest.Load(),
	}
	if snap.Total > 0 {
		snap.AvgLatencyMs = float64(s.latencyNs.Load()) / float64(snap.Total) / 1e6
	}
	if lookups := s.lookups.Load(); lookups > 0 {
		snap.CacheHitRate = float64(s.cacheHits.Load()) / float64(lookups)
	}
	return snap
}
