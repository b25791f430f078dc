package ensemble

import (
	"github.com/indiatrader/core/internal/apperr"
	"github.com/indiatrader/core/internal/config"
	"github.com/indiatrader/core/internal/domain"
)

// Levels is the ATR-derived entry/stop/target set for one signal (spec
// §4.3 "Trading levels"). Detaching risk sizing from the nominal price
// scale this way mirrors the teacher's own volatility-normalised scoring
// (metrics expressed relative to a trailing reference rather than raw
// price levels).
type Levels struct {
	Entry    float64
	StopLoss float64
	Target1  float64
	Target2  float64
}

// DeriveLevels computes entry/stop/target given a reference price, the
// recent ATR, the side implied by label, and the configured per-style ATR
// multipliers. Fails with InvalidLevels if the ordering invariant
// target_i > entry > stop_loss (or its sell-side mirror) does not hold —
// e.g. a non-positive or non-finite ATR.
func DeriveLevels(price, atr float64, label domain.Label, k config.LevelConstants) (Levels, error) {
	sell := label == domain.LabelSell || label == domain.LabelStrongSell

	var lv Levels
	lv.Entry = price
	if sell {
		lv.StopLoss = price + k.KSL*atr
		lv.Target1 = price - k.KT1*atr
		lv.Target2 = price - k.KT2*atr
	} else {
		lv.StopLoss = price - k.KSL*atr
		lv.Target1 = price + k.KT1*atr
		lv.Target2 = price + k.KT2*atr
	}

	if !validOrdering(lv, sell) {
		return Levels{}, apperr.New(apperr.InvalidLevels, "ensemble.DeriveLevels", nil)
	}
	return lv, nil
}

func validOrdering(lv Levels, sell bool) bool {
	if sell {
		return lv.Target2 < lv.Target1 && lv.Target1 < lv.Entry && lv.Entry < lv.StopLoss
	}
	return lv.StopLoss < lv.Entry && lv.Entry < lv.Target1 && lv.Target1 < lv.Target2
}
