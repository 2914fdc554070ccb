package indicators

import (
	"context"
	"fmt"
	"math"

	"backtestCore/internal/domain"
)

// ADXConfig holds configuration for the Average Directional Index
type ADXConfig struct {
	IndicatorConfig
}

// ADX implements Wilder's Average Directional Index
type ADX struct {
	BaseIndicator
}

// NewADX creates a new ADX indicator instance
func NewADX(config ADXConfig) *ADX {
	return &ADX{BaseIndicator: BaseIndicator{Config: config.IndicatorConfig}}
}

// Name returns the name of the indicator
func (a *ADX) Name() string {
	return "ADX"
}

// RequiredDataPoints returns 2*period: period bars to seed the directional
// movement, then period DX values to seed the average.
func (a *ADX) RequiredDataPoints() int {
	return 2 * a.Config.Period
}

// Calculate computes the ADX at the last bar
func (a *ADX) Calculate(ctx context.Context, bars []domain.Bar) (float64, error) {
	period := a.Config.Period
	if period <= 0 || len(bars) < a.RequiredDataPoints() {
		return 0, fmt.Errorf("not enough data (%d) to calculate ADX for period %d", len(bars), period)
	}

	tr := TrueRanges(bars)
	var smTR, smPlus, smMinus float64
	var adx float64
	dxCount := 0
	p := float64(period)

	for i := 1; i < len(bars); i++ {
		up := float64(bars[i].High - bars[i-1].High)
		down := float64(bars[i-1].Low - bars[i].Low)
		plusDM, minusDM := 0.0, 0.0
		if up > down && up > 0 {
			plusDM = up
		}
		if down > up && down > 0 {
			minusDM = down
		}

		if i <= period {
			smTR += tr[i]
			smPlus += plusDM
			smMinus += minusDM
			if i < period {
				continue
			}
		} else {
			smTR = smTR - smTR/p + tr[i]
			smPlus = smPlus - smPlus/p + plusDM
			smMinus = smMinus - smMinus/p + minusDM
		}

		dx := directionalIndex(smTR, smPlus, smMinus)
		dxCount++
		switch {
		case dxCount < period:
			adx += dx
		case dxCount == period:
			adx = (adx + dx) / p
		default:
			adx = (adx*(p-1) + dx) / p
		}
	}

	if dxCount < period {
		return 0, fmt.Errorf("not enough data (%d) to seed ADX for period %d", len(bars), period)
	}
	return adx, nil
}

func directionalIndex(tr, plusDM, minusDM float64) float64 {
	if tr == 0 {
		return 0
	}
	plusDI := 100 * plusDM / tr
	minusDI := 100 * minusDM / tr
	if plusDI+minusDI == 0 {
		return 0
	}
	return 100 * math.Abs(plusDI-minusDI) / (plusDI + minusDI)
}
