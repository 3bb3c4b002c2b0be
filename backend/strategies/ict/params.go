package ict

import "github.com/shopspring/decimal"

// DetectorParams is the decimal-typed view of an ICT profile's tuning
// knobs, as consumed directly by the detector suite.
type DetectorParams struct {
	SwingLookback      int
	DisplacementRatio  decimal.Decimal
	FVGMinGapPercent   decimal.Decimal
	OBMinStrength      decimal.Decimal
	LiquidityTolerance decimal.Decimal
	RiskRewardRatio    decimal.Decimal
}

// NewDetectorParams converts float64 profile parameters into their decimal
// equivalents.
func NewDetectorParams(swingLookback int, displacementRatio, fvgMinGapPercent, obMinStrength, liquidityTolerance, rrRatio float64) DetectorParams {
	return DetectorParams{
		SwingLookback:      swingLookback,
		DisplacementRatio:  decimal.NewFromFloat(displacementRatio),
		FVGMinGapPercent:   decimal.NewFromFloat(fvgMinGapPercent),
		OBMinStrength:      decimal.NewFromFloat(obMinStrength),
		LiquidityTolerance: decimal.NewFromFloat(liquidityTolerance),
		RiskRewardRatio:    decimal.NewFromFloat(rrRatio),
	}
}
