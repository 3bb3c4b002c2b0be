package ict

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/ocho011/ict-2025-sub000/backend/models"
	"github.com/ocho011/ict-2025-sub000/backend/strategies"
)

const entryDeterminerName = "ict"

// ZoneRange is a (low, high) price band passed through EntryDecision.Extras
// under the "fvg_zone" / "ob_zone" keys so pricing determiners can anchor a
// stop or target without re-running detection.
type ZoneRange struct {
	Low  decimal.Decimal
	High decimal.Decimal
}

// ConditionStats counts how often each stage of the entry pipeline passes,
// for offline tuning of profile parameters against live condition rates.
type ConditionStats struct {
	TotalChecks      int
	KillzoneOK       int
	TrendOK          int
	ZoneOK           int
	FVGOBOK          int
	InducementOK     int
	DisplacementOK   int
	AllConditionsOK  int
	SignalsGenerated int
}

// ICTEntryDeterminer implements the Smart Money Concepts entry pipeline:
// kill-zone filter, market-structure trend, premium/discount zone, FVG/order
// block confluence, liquidity inducement, and displacement confirmation.
// A signal only fires when every stage agrees.
type ICTEntryDeterminer struct {
	SwingLookback      int
	DisplacementRatio  decimal.Decimal
	FVGMinGapPercent   decimal.Decimal
	OBMinStrength      decimal.Decimal
	LiquidityTolerance decimal.Decimal
	UseKillzones       bool
	MinPeriods         int

	LTFInterval string
	MTFInterval string
	HTFInterval string

	// Cache, if set, supplies market structure and FVG/OB state computed
	// once per closed candle instead of recomputed on every Analyze call.
	Cache *IndicatorCache

	mu    sync.Mutex
	stats ConditionStats
}

// NewICTEntryDeterminer builds a determiner from a loosely-typed parameter
// map, as produced by config-driven strategy assembly. Missing keys fall
// back to balanced-profile defaults.
func NewICTEntryDeterminer(params map[string]any) (*ICTEntryDeterminer, error) {
	d := &ICTEntryDeterminer{
		SwingLookback:      paramInt(params, "swing_lookback", 5),
		DisplacementRatio:  paramDecimal(params, "displacement_ratio", 1.5),
		FVGMinGapPercent:   paramDecimal(params, "fvg_min_gap_percent", 0.001),
		OBMinStrength:      paramDecimal(params, "ob_min_strength", 1.5),
		LiquidityTolerance: paramDecimal(params, "liquidity_tolerance", 0.001),
		UseKillzones:       paramBool(params, "use_killzones", true),
		LTFInterval:        paramString(params, "ltf_interval", "5m"),
		MTFInterval:        paramString(params, "mtf_interval", "1h"),
		HTFInterval:        paramString(params, "htf_interval", "4h"),
	}
	if cache, ok := params["cache"].(*IndicatorCache); ok {
		d.Cache = cache
	}
	d.MinPeriods = 50
	if d.SwingLookback*4 > d.MinPeriods {
		d.MinPeriods = d.SwingLookback * 4
	}
	return d, nil
}

func init() {
	strategies.RegisterEntry(entryDeterminerName, func(params map[string]any) (strategies.EntryDeterminer, error) {
		return NewICTEntryDeterminer(params)
	})
}

// Name identifies the determiner in the strategy registry.
func (d *ICTEntryDeterminer) Name() string { return entryDeterminerName }

// Requirements declares the minimum closed-candle history needed on each of
// the three timeframes this determiner reads.
func (d *ICTEntryDeterminer) Requirements() models.ModuleRequirements {
	min := map[string]int{}
	for _, interval := range []string{d.LTFInterval, d.MTFInterval, d.HTFInterval} {
		if interval == "" {
			continue
		}
		if existing, ok := min[interval]; !ok || d.MinPeriods > existing {
			min[interval] = d.MinPeriods
		}
	}
	return models.NewModuleRequirements(min)
}

// GetConditionStats returns a snapshot of the pipeline's pass-rate counters.
func (d *ICTEntryDeterminer) GetConditionStats() ConditionStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// ResetConditionStats zeroes the pipeline's pass-rate counters.
func (d *ICTEntryDeterminer) ResetConditionStats() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats = ConditionStats{}
}

type displacementEvent struct {
	Direction models.Direction
	Size      decimal.Decimal
}

func detectDisplacements(candles []models.Candle, lookback int, minRatio decimal.Decimal) []displacementEvent {
	var out []displacementEvent
	for i := lookback; i < len(candles); i++ {
		if !DetectDisplacement(candles, i, lookback, minRatio) {
			continue
		}
		direction := models.DirectionBearish
		if candles[i].Bullish() {
			direction = models.DirectionBullish
		}
		out = append(out, displacementEvent{Direction: direction, Size: candles[i].Range()})
	}
	return out
}

type inducementEvent struct {
	Direction models.Direction
}

// detectInducements scans the trailing window of candles for liquidity
// sweeps against the given pools. An event's Direction matches the swept
// pool's direction: a sell-side (bearish) pool swept and reclaimed signals
// a bearish-direction inducement that typically precedes bullish
// continuation, and symmetrically for buy-side pools.
func detectInducements(candles []models.Candle, pools []models.LiquidityPool, lookback int) []inducementEvent {
	start := len(candles) - lookback
	if start < 0 {
		start = 0
	}
	var out []inducementEvent
	for i := start; i < len(candles); i++ {
		for _, pool := range pools {
			if DetectInducement(candles, i, pool) {
				out = append(out, inducementEvent{Direction: pool.Direction})
			}
		}
	}
	return out
}

func recentDirection(direction models.Direction, events []models.Direction, window int) bool {
	start := len(events) - window
	if start < 0 {
		start = 0
	}
	for _, d := range events[start:] {
		if d == direction {
			return true
		}
	}
	return false
}

// Analyze runs the full ICT entry pipeline against the latest closed candle
// on the configured lower timeframe.
func (d *ICTEntryDeterminer) Analyze(ctx strategies.EntryContext) (*strategies.EntryDecision, error) {
	candle := ctx.Candle
	if !candle.IsClosed {
		return nil, nil
	}

	buffer := ctx.Buffers[d.LTFInterval]
	if len(buffer) < d.MinPeriods {
		return nil, nil
	}

	if d.UseKillzones && !IsKillZoneActive(candle.OpenTime) {
		return nil, nil
	}

	trend := d.resolveTrend(ctx.Symbol, buffer)
	if trend == "" || trend == models.TrendSideways {
		return nil, nil
	}

	lookbackWindow := buffer
	if len(lookbackWindow) > 50 {
		lookbackWindow = lookbackWindow[len(lookbackWindow)-50:]
	}
	level := PremiumDiscountFromCandles(lookbackWindow)
	currentPrice := candle.Close

	bullishFVGs, bearishFVGs, bullishOBs, bearishOBs := d.resolveZones(ctx.Symbol, buffer)

	var swings []models.SwingPoint
	swings = append(swings, IdentifySwingHighs(buffer, d.SwingLookback, d.SwingLookback)...)
	swings = append(swings, IdentifySwingLows(buffer, d.SwingLookback, d.SwingLookback)...)
	pools := append(DetectEqualHighs(swings, d.LiquidityTolerance), DetectEqualLows(swings, d.LiquidityTolerance)...)
	inducements := detectInducements(buffer, pools, 10)
	inducementDirs := make([]models.Direction, len(inducements))
	for i, ev := range inducements {
		inducementDirs[i] = ev.Direction
	}

	displacements := detectDisplacements(buffer, d.SwingLookback, d.DisplacementRatio)
	displacementDirs := make([]models.Direction, len(displacements))
	for i, ev := range displacements {
		displacementDirs[i] = ev.Direction
	}

	d.mu.Lock()
	d.stats.TotalChecks++
	if !d.UseKillzones || IsKillZoneActive(candle.OpenTime) {
		d.stats.KillzoneOK++
	}
	d.stats.TrendOK++
	d.mu.Unlock()

	switch {
	case trend == models.TrendBullish && level.IsDiscount(currentPrice):
		return d.tryLong(ctx, currentPrice, trend, bullishFVGs, bullishOBs, inducementDirs, displacementDirs, displacements)
	case trend == models.TrendBearish && level.IsPremium(currentPrice):
		return d.tryShort(ctx, currentPrice, trend, bearishFVGs, bearishOBs, inducementDirs, displacementDirs, displacements)
	}

	return nil, nil
}

func (d *ICTEntryDeterminer) resolveTrend(symbol string, buffer []models.Candle) models.Trend {
	if d.Cache != nil {
		if htf, ok := d.Cache.Get(symbol, d.HTFInterval); ok && htf.Trend != "" {
			return htf.Trend
		}
		if mtf, ok := d.Cache.Get(symbol, d.MTFInterval); ok && mtf.Trend != "" {
			return mtf.Trend
		}
	}
	return GetCurrentTrend(buffer, d.SwingLookback, 2)
}

func (d *ICTEntryDeterminer) resolveZones(symbol string, buffer []models.Candle) (bullishFVGs, bearishFVGs []models.FairValueGap, bullishOBs, bearishOBs []models.OrderBlock) {
	if d.Cache != nil {
		if state, ok := d.Cache.Get(symbol, d.MTFInterval); ok {
			for _, ob := range state.OrderBlocks {
				if ob.Strength.LessThan(d.OBMinStrength) {
					continue
				}
				if ob.Direction == models.DirectionBullish {
					bullishOBs = append(bullishOBs, ob)
				} else {
					bearishOBs = append(bearishOBs, ob)
				}
			}
			return state.BullishFVGs, state.BearishFVGs, bullishOBs, bearishOBs
		}
	}

	bullishFVGs, bearishFVGs = DetectAllFVG(buffer, symbol, d.MTFInterval, d.FVGMinGapPercent)
	obs := UpdateOrderBlockStatus(DetectOrderBlocks(buffer, symbol, d.MTFInterval, d.SwingLookback, d.DisplacementRatio), buffer)
	for _, ob := range obs {
		if ob.Strength.LessThan(d.OBMinStrength) {
			continue
		}
		if ob.Direction == models.DirectionBullish {
			bullishOBs = append(bullishOBs, ob)
		} else {
			bearishOBs = append(bearishOBs, ob)
		}
	}
	return
}

func (d *ICTEntryDeterminer) tryLong(ctx strategies.EntryContext, currentPrice decimal.Decimal, trend models.Trend, fvgs []models.FairValueGap, obs []models.OrderBlock, inducementDirs, displacementDirs []models.Direction, displacements []displacementEvent) (*strategies.EntryDecision, error) {
	d.mu.Lock()
	d.stats.ZoneOK++
	d.mu.Unlock()

	var candidateFVGs []models.FairValueGap
	for _, f := range fvgs {
		if f.GapLow.LessThan(currentPrice) {
			candidateFVGs = append(candidateFVGs, f)
		}
	}
	var candidateOBs []models.OrderBlock
	for _, ob := range obs {
		if ob.Low.LessThan(currentPrice) {
			candidateOBs = append(candidateOBs, ob)
		}
	}

	nearestFVG := FindNearestFVG(candidateFVGs, currentPrice, models.DirectionBullish, true)
	nearestOB := FindNearestOB(candidateOBs, currentPrice, models.DirectionBullish)
	hasFVGOrOB := nearestFVG != nil || nearestOB != nil
	if hasFVGOrOB {
		d.mu.Lock()
		d.stats.FVGOBOK++
		d.mu.Unlock()
	}

	recentInducement := recentDirection(models.DirectionBearish, inducementDirs, 3)
	if recentInducement {
		d.mu.Lock()
		d.stats.InducementOK++
		d.mu.Unlock()
	}
	recentDisplacement := recentDirection(models.DirectionBullish, displacementDirs, 3)
	if recentDisplacement {
		d.mu.Lock()
		d.stats.DisplacementOK++
		d.mu.Unlock()
	}

	if !(recentInducement && recentDisplacement && hasFVGOrOB) {
		return nil, nil
	}

	d.mu.Lock()
	d.stats.AllConditionsOK++
	d.stats.SignalsGenerated++
	d.mu.Unlock()

	extras := d.buildExtras(nearestFVG, nearestOB, displacements)
	metadata := map[string]any{
		"trend":        string(trend),
		"zone":         "discount",
		"fvg_present":  nearestFVG != nil,
		"ob_present":   nearestOB != nil,
		"inducement":   recentInducement,
		"displacement": recentDisplacement,
	}
	if d.UseKillzones {
		metadata["killzone"] = string(ActiveKillZone(ctx.Candle.OpenTime))
	}

	return &strategies.EntryDecision{
		Kind:       models.SignalLongEntry,
		EntryPrice: currentPrice,
		Confidence: 1.0,
		Extras:     extras,
		Metadata:   metadata,
	}, nil
}

func (d *ICTEntryDeterminer) tryShort(ctx strategies.EntryContext, currentPrice decimal.Decimal, trend models.Trend, fvgs []models.FairValueGap, obs []models.OrderBlock, inducementDirs, displacementDirs []models.Direction, displacements []displacementEvent) (*strategies.EntryDecision, error) {
	d.mu.Lock()
	d.stats.ZoneOK++
	d.mu.Unlock()

	var candidateFVGs []models.FairValueGap
	for _, f := range fvgs {
		if f.GapHigh.GreaterThan(currentPrice) {
			candidateFVGs = append(candidateFVGs, f)
		}
	}
	var candidateOBs []models.OrderBlock
	for _, ob := range obs {
		if ob.High.GreaterThan(currentPrice) {
			candidateOBs = append(candidateOBs, ob)
		}
	}

	nearestFVG := FindNearestFVG(candidateFVGs, currentPrice, models.DirectionBearish, true)
	nearestOB := FindNearestOB(candidateOBs, currentPrice, models.DirectionBearish)
	hasFVGOrOB := nearestFVG != nil || nearestOB != nil
	if hasFVGOrOB {
		d.mu.Lock()
		d.stats.FVGOBOK++
		d.mu.Unlock()
	}

	recentInducement := recentDirection(models.DirectionBullish, inducementDirs, 3)
	if recentInducement {
		d.mu.Lock()
		d.stats.InducementOK++
		d.mu.Unlock()
	}
	recentDisplacement := recentDirection(models.DirectionBearish, displacementDirs, 3)
	if recentDisplacement {
		d.mu.Lock()
		d.stats.DisplacementOK++
		d.mu.Unlock()
	}

	if !(recentInducement && recentDisplacement && hasFVGOrOB) {
		return nil, nil
	}

	d.mu.Lock()
	d.stats.AllConditionsOK++
	d.stats.SignalsGenerated++
	d.mu.Unlock()

	extras := d.buildExtras(nearestFVG, nearestOB, displacements)
	metadata := map[string]any{
		"trend":        string(trend),
		"zone":         "premium",
		"fvg_present":  nearestFVG != nil,
		"ob_present":   nearestOB != nil,
		"inducement":   recentInducement,
		"displacement": recentDisplacement,
	}
	if d.UseKillzones {
		metadata["killzone"] = string(ActiveKillZone(ctx.Candle.OpenTime))
	}

	return &strategies.EntryDecision{
		Kind:       models.SignalShortEntry,
		EntryPrice: currentPrice,
		Confidence: 1.0,
		Extras:     extras,
		Metadata:   metadata,
	}, nil
}

func (d *ICTEntryDeterminer) buildExtras(fvg *models.FairValueGap, ob *models.OrderBlock, displacements []displacementEvent) map[string]any {
	extras := map[string]any{}
	if fvg != nil {
		low, high := EntryZone(*fvg, decimal.NewFromInt(1))
		extras["fvg_zone"] = ZoneRange{Low: low, High: high}
	}
	if ob != nil {
		extras["ob_zone"] = ZoneRange{Low: ob.Low, High: ob.High}
	}
	if len(displacements) > 0 {
		extras["displacement_size"] = displacements[len(displacements)-1].Size
	}
	return extras
}

func paramInt(params map[string]any, key string, fallback int) int {
	if v, ok := params[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		}
	}
	return fallback
}

func paramBool(params map[string]any, key string, fallback bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return fallback
}

func paramString(params map[string]any, key, fallback string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return fallback
}

func paramDecimal(params map[string]any, key string, fallback float64) decimal.Decimal {
	if v, ok := params[key]; ok {
		switch n := v.(type) {
		case float64:
			return decimal.NewFromFloat(n)
		case decimal.Decimal:
			return n
		case string:
			if parsed, err := decimal.NewFromString(n); err == nil {
				return parsed
			}
		}
	}
	return decimal.NewFromFloat(fallback)
}
