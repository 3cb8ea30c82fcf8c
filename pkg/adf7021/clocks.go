package adf7021

import (
	"fmt"
	"math"
)

// Clock search limits
const (
	MinDemClkDivide = 1
	MaxDemClkDivide = 14
	MaxDiscBW       = 660
	MaxCDRClkDivide = 255
)

// ClockPlan is the output of PlanClocks: the divider values for R3/R4 and
// the data rate and deviation they actually achieve.
type ClockPlan struct {
	K             uint32  // demodulator scaling constant
	DemClkDivide  uint8   // R3 demodulator clock divider, 1-14
	CDRClkDivide  uint8   // R3 clock-and-data-recovery divider
	DiscBW        uint16  // R4 discriminator bandwidth
	PostDemodBW   uint16  // R4 post-demodulation bandwidth
	RxInvert      uint8   // R4 K parity classification
	DotProduct    uint8   // R4 K parity classification
	FreqDeviation uint16  // R2 deviation word computed from the real data rate
	DataRate      float64 // achieved data rate in bps
	DeviationHz   float64 // achieved frequency deviation in Hz
	ModIndex      float64 // achieved modulation index
}

// deviationWord is the R2 deviation word, 16 bits of fractional
// resolution against half the crystal frequency
func deviationWord(xtalHz float64, dataRate float64, modIndex uint8) uint16 {
	return uint16(math.Round(float64(modIndex) * 0.5 * dataRate * 65536.0 / (0.5 * xtalHz)))
}

// PlanClocks searches the demodulator clock divider giving the data rate
// closest to dataRate. Lower dividers win ties. It returns
// ErrNoClockSolution when no divider satisfies the discriminator bandwidth
// and CDR divider limits.
func PlanClocks(xtalHz uint32, dataRate uint32, modIndex uint8) (ClockPlan, error) {
	if xtalHz == 0 || dataRate == 0 || modIndex == 0 {
		return ClockPlan{}, fmt.Errorf("%w: xtal=%d rate=%d index=%d", ErrNoClockSolution, xtalHz, dataRate, modIndex)
	}
	xtal := float64(xtalHz)
	desired := float64(dataRate)

	trialDev := deviationWord(xtal, desired, modIndex)
	freqDev := float64(trialDev) * xtal / 65536.0
	if freqDev == 0 {
		return ClockPlan{}, fmt.Errorf("%w: zero deviation", ErrNoClockSolution)
	}
	k := uint32(math.Round(100000 / freqDev))

	best := 0
	bestResidual := math.MaxInt16
	for i := MinDemClkDivide; i <= MaxDemClkDivide; i++ {
		demodClk := xtal / float64(i)
		discBW := math.Round(float64(k) * demodClk / 400000)
		cdr := math.Round(demodClk / (desired * 32))
		if discBW > MaxDiscBW || cdr > MaxCDRClkDivide || cdr == 0 {
			continue
		}
		real := xtal / (float64(i) * cdr * 32.0)
		residual := int(real) - int(dataRate)
		if residual < 0 {
			residual = -residual
		}
		if residual < bestResidual {
			bestResidual = residual
			best = i
		}
	}
	if best == 0 {
		return ClockPlan{}, fmt.Errorf("%w: xtal=%d rate=%d index=%d", ErrNoClockSolution, xtalHz, dataRate, modIndex)
	}

	demodClk := xtal / float64(best)
	cdr := math.Round(demodClk / (desired * 32))
	realRate := xtal / (float64(best) * cdr * 32.0)
	dev := deviationWord(xtal, realRate, modIndex)

	plan := ClockPlan{
		K:             k,
		DemClkDivide:  uint8(best),
		CDRClkDivide:  uint8(cdr),
		DiscBW:        uint16(math.Round(float64(k) * demodClk / 400000)),
		PostDemodBW:   uint16(math.Round(realRate * 0.75 * math.Pi * 2048.0 / demodClk)),
		FreqDeviation: dev,
		DataRate:      realRate,
		DeviationHz:   float64(dev) * xtal / 65536.0,
	}
	plan.ModIndex = plan.DeviationHz / realRate
	plan.RxInvert, plan.DotProduct = kParity(k)
	return plan, nil
}

// kParity classifies K by the parity of K and ceil(K/2)
func kParity(k uint32) (rxInvert, dotProduct uint8) {
	switch {
	case k&1 == 1 && ((k+1)/2)&1 == 1:
		return 2, 1
	case k&1 == 1 && ((k+1)/2)&1 == 0:
		return 0, 1
	case k&1 == 0 && (k/2)&1 == 1:
		return 2, 0
	case k&1 == 0 && (k/2)&1 == 0:
		return 0, 0
	}
	panic("unreachable")
}
