// Package risk implements exposure-limit resolution and breach
// classification for prospective and existing positions.
//
// Limits form a specificity hierarchy: a limit may be bound to a client,
// an instrument, both, or neither (the global default). Evaluation resolves
// the single most specific active limit for a (client, instrument) pair and
// classifies USD exposure against its soft and hard thresholds. A hard
// breach blocks trade execution; a soft breach only gets logged.
package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/otcdesk/desk-engine/internal/ledger"
	"github.com/otcdesk/desk-engine/internal/model"
)

// CheckResult is the outcome of a breach evaluation.
type CheckResult struct {
	SoftBreach           bool            `json:"soft_breach"`
	HardBreach           bool            `json:"hard_breach"`
	ProjectedExposureUSD decimal.Decimal `json:"projected_exposure_usd"`
	SoftLimitUSD         decimal.Decimal `json:"soft_limit_usd"`
	HardLimitUSD         decimal.Decimal `json:"hard_limit_usd"`
	LimitConfigured      bool            `json:"limit_configured"`
	Message              string          `json:"message"`
}

// HardBreachError carries the rejection details when a prospective trade
// would breach the hard limit.
type HardBreachError struct {
	ProjectedExposureUSD decimal.Decimal
	HardLimitUSD         decimal.Decimal
}

func (e *HardBreachError) Error() string {
	return fmt.Sprintf("risk: hard limit breach (projected exposure %s >= hard limit %s)",
		e.ProjectedExposureUSD, e.HardLimitUSD)
}

// specificity scores a limit: one point per bound constraint. A limit bound
// to both client and instrument beats a client-only or instrument-only
// limit, which beats the global default.
func specificity(l model.RiskLimit) int {
	score := 0
	if l.ClientID != nil {
		score++
	}
	if l.InstrumentID != nil {
		score++
	}
	return score
}

// EffectiveLimit resolves the single most specific active limit for a
// (client, instrument) pair. Candidates are limits whose client constraint
// is nil or equal to the target client, and whose instrument constraint is
// nil or equal to the target instrument. Ties on specificity break by input
// order, so the result is deterministic for a stable limit list. Returns
// nil when nothing matches — no limit configured is never a breach.
func EffectiveLimit(limits []model.RiskLimit, clientID, instrumentID int64) *model.RiskLimit {
	var best *model.RiskLimit
	bestScore := -1
	for i := range limits {
		l := &limits[i]
		if !l.Active {
			continue
		}
		if l.ClientID != nil && *l.ClientID != clientID {
			continue
		}
		if l.InstrumentID != nil && *l.InstrumentID != instrumentID {
			continue
		}
		if score := specificity(*l); score > bestScore {
			best = l
			bestScore = score
		}
	}
	return best
}

// Classify compares an absolute USD exposure against a limit's thresholds.
// Both boundaries are inclusive: exposure equal to the hard limit is a hard
// breach.
func Classify(exposureUSD decimal.Decimal, limit *model.RiskLimit) (softBreach, hardBreach bool) {
	if limit == nil {
		return false, false
	}
	return exposureUSD.GreaterThanOrEqual(limit.SoftLimitUSD),
		exposureUSD.GreaterThanOrEqual(limit.HardLimitUSD)
}

// EvaluateTrade classifies a prospective trade. The signed size delta is
// added to the client's current net position (zero if none exists) and the
// projected net is marked at the trade price to get projected USD exposure.
func EvaluateTrade(currentNet decimal.Decimal, side model.Side, size, price decimal.Decimal, limit *model.RiskLimit) CheckResult {
	projectedNet := currentNet.Add(ledger.SignedSize(side, size))
	projectedExposure := projectedNet.Mul(price).Abs()

	if limit == nil {
		return CheckResult{
			ProjectedExposureUSD: projectedExposure,
			Message:              "no active limit configured",
		}
	}

	soft, hard := Classify(projectedExposure, limit)
	message := "within risk limits"
	switch {
	case hard:
		message = "hard limit breach"
	case soft:
		message = "soft limit breach"
	}

	return CheckResult{
		SoftBreach:           soft,
		HardBreach:           hard,
		ProjectedExposureUSD: projectedExposure,
		SoftLimitUSD:         limit.SoftLimitUSD,
		HardLimitUSD:         limit.HardLimitUSD,
		LimitConfigured:      true,
		Message:              message,
	}
}
