package scanner

import "math"

// FrequencySmoother keeps a reported peak frequency from jittering
// between adjacent fine-scan steps while still following a jump to a
// new signal quickly.
type FrequencySmoother struct {
	value     float64
	threshold float64 // Hz
	kFast     float64
	kSlow     float64
}

// NewFrequencySmoother creates a smoother. A change larger than
// threshold Hz is tracked with kFast, smaller ones with kSlow.
func NewFrequencySmoother(threshold, kFast, kSlow float64) *FrequencySmoother {
	return &FrequencySmoother{threshold: threshold, kFast: kFast, kSlow: kSlow}
}

// Update folds hz into the running estimate and returns it
func (s *FrequencySmoother) Update(hz float64) float64 {
	if s.value == 0 {
		s.value = hz
		return hz
	}
	k := s.kSlow
	if math.Abs(hz-s.value) > s.threshold {
		k = s.kFast
	}
	s.value += (hz - s.value) * k
	return s.value
}

// ValueHz returns the estimate rounded to whole Hz
func (s *FrequencySmoother) ValueHz() uint32 {
	return uint32(math.Round(s.value))
}

// Reset forgets the estimate
func (s *FrequencySmoother) Reset() {
	s.value = 0
}
