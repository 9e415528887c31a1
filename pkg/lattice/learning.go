package lattice

import (
	"encoding/binary"
	"math"
	"sort"
)

// This file implements the learning/performance convenience operations of
// spec §5: thin wrappers over the opaque Payload field that the core
// otherwise never interprets. The layout below is this package's own
// choice, not dictated by spec.md, which leaves Payload's internal format
// unspecified beyond "opaque structured fields".
//
// Payload layout for TypePerformance and TypeLearning nodes:
//
//	0  score        float64
//	8  successCount u32
//	12 totalCount   u32

const (
	learnOffScore   = 0
	learnOffSuccess = 8
	learnOffTotal   = 12
)

// StorePerformance records a named performance sample as a TypePerformance
// node (spec §5 store_performance).
func (s *Store) StorePerformance(name string, score float64, parentID uint64) (uint64, error) {
	payload := make([]byte, PayloadSize)
	binary.LittleEndian.PutUint64(payload[learnOffScore:], math.Float64bits(score))
	binary.LittleEndian.PutUint32(payload[learnOffSuccess:], 0)
	binary.LittleEndian.PutUint32(payload[learnOffTotal:], 0)
	return s.insertNode(TypePerformance, name, nil, payload, parentID)
}

// GetBestPerformance returns the highest-scoring TypePerformance node whose
// name matches the given prefix bucket.
func (s *Store) GetBestPerformance(namePrefix string) (*Node, error) {
	candidates, err := s.FindByName(namePrefix)
	if err != nil {
		return nil, err
	}
	var best *Node
	var bestScore float64
	for _, n := range candidates {
		if n.Type != TypePerformance {
			continue
		}
		score := math.Float64frombits(binary.LittleEndian.Uint64(n.Payload[learnOffScore:]))
		if best == nil || score > bestScore {
			best, bestScore = n, score
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

// StorePattern records a discovered pattern as a TypeLearning node (spec §5
// store_pattern).
func (s *Store) StorePattern(name string, data []byte, parentID uint64) (uint64, error) {
	payload := make([]byte, PayloadSize)
	binary.LittleEndian.PutUint64(payload[learnOffScore:], math.Float64bits(1.0))
	return s.insertNode(TypeLearning, name, data, payload, parentID)
}

// GetEvolvedPatterns returns every TypeLearning node under a prefix, sorted
// by confidence descending (spec §5 get_evolved_patterns).
func (s *Store) GetEvolvedPatterns(namePrefix string) ([]*Node, error) {
	candidates, err := s.FindByName(namePrefix)
	if err != nil {
		return nil, err
	}
	var out []*Node
	for _, n := range candidates {
		if n.Type == TypeLearning {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out, nil
}

// EvolvePatterns bumps the confidence of every matching pattern by delta,
// clamped to [0, 1] (spec §5 evolve_patterns).
func (s *Store) EvolvePatterns(namePrefix string, delta float64) (int, error) {
	patterns, err := s.GetEvolvedPatterns(namePrefix)
	if err != nil {
		return 0, err
	}
	var changed int
	for _, n := range patterns {
		if err := s.UpdateConfidence(n.ID, clamp01(n.Confidence+delta)); err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// UpdateConfidence sets a node's confidence field directly (spec §5
// update_confidence).
func (s *Store) UpdateConfidence(id uint64, confidence float64) error {
	err := s.seq.write(func() error {
		idx, ok := s.resolveSlot(id)
		if !ok {
			return ErrNotFound
		}
		s.slotAt(idx).setConfidence(confidence)
		s.dirty = true
		return nil
	})
	if err != nil {
		s.fail(err)
	}
	return err
}

// UpdateSuccessRate records one more observation of success/failure on a
// TypePerformance node's Payload, recomputing its score as the running
// success ratio (spec §5 update_success_rate).
func (s *Store) UpdateSuccessRate(id uint64, success bool) error {
	err := s.seq.write(func() error {
		idx, ok := s.resolveSlot(id)
		if !ok {
			return ErrNotFound
		}
		sl := s.slotAt(idx)
		if sl.typ() != TypePerformance {
			return ErrInvalidNode
		}
		payload := sl.payloadBytes()
		successCount := binary.LittleEndian.Uint32(payload[learnOffSuccess:])
		totalCount := binary.LittleEndian.Uint32(payload[learnOffTotal:])
		if success {
			successCount++
		}
		totalCount++
		binary.LittleEndian.PutUint32(payload[learnOffSuccess:], successCount)
		binary.LittleEndian.PutUint32(payload[learnOffTotal:], totalCount)
		binary.LittleEndian.PutUint64(payload[learnOffScore:], math.Float64bits(float64(successCount)/float64(totalCount)))
		s.dirty = true
		return nil
	})
	if err != nil {
		s.fail(err)
	}
	return err
}
