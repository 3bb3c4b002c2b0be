package config

import "fmt"

// ICTParameters is a tuned parameter set controlling how aggressively the
// entry determiner signals: swing lookback, displacement and order-block
// strength thresholds, FVG minimum gap, liquidity tolerance, and the
// risk-reward ratio used for take-profit placement.
type ICTParameters struct {
	SwingLookback      int
	DisplacementRatio  float64
	FVGMinGapPercent   float64
	OBMinStrength      float64
	LiquidityTolerance float64
	RiskRewardRatio    float64
}

// profileParameters maps each named profile to its tuned parameter set.
// STRICT favors precision (1-2 signals/week), BALANCED is the recommended
// default (5-10 signals/week), RELAXED is for testing only (15-20/week).
var profileParameters = map[ICTProfileName]ICTParameters{
	ProfileStrict: {
		SwingLookback:      5,
		DisplacementRatio:  1.5,
		FVGMinGapPercent:   0.001,
		OBMinStrength:      1.5,
		LiquidityTolerance: 0.001,
		RiskRewardRatio:    2.0,
	},
	ProfileBalanced: {
		SwingLookback:      5,
		DisplacementRatio:  1.3,
		FVGMinGapPercent:   0.001,
		OBMinStrength:      1.3,
		LiquidityTolerance: 0.002,
		RiskRewardRatio:    2.0,
	},
	ProfileRelaxed: {
		SwingLookback:      3,
		DisplacementRatio:  1.1,
		FVGMinGapPercent:   0.0005,
		OBMinStrength:      1.1,
		LiquidityTolerance: 0.005,
		RiskRewardRatio:    2.0,
	},
}

// GetICTParameters returns the tuned parameter set for a named profile.
func GetICTParameters(name ICTProfileName) (ICTParameters, error) {
	p, ok := profileParameters[name]
	if !ok {
		return ICTParameters{}, fmt.Errorf("unknown ICT profile %q", name)
	}
	return p, nil
}
