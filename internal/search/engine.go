// Package search enumerates three-leg trade cycles over the asset graph and
// filters them against cached ticker state. Survivors are either returned
// directly (batch mode) or handed to live orderbook confirmation.
package search

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xlabhq/triarb/internal/domain"
	"github.com/xlabhq/triarb/internal/graph"
)

const (
	// DefaultProfitThreshold is the minimum ticker-estimated rate for a
	// triangle to count as a candidate.
	DefaultProfitThreshold = 1.01
)

// Options narrows a cycle search. Zero values mean "no restriction" except
// ProfitThreshold, which defaults to DefaultProfitThreshold.
type Options struct {
	// Exchanges restricts every leg to the listed exchanges when non-empty.
	Exchanges []string
	// StartingExchange pins the first leg to one exchange.
	StartingExchange string
	// MinVolume is a floor on each leg's liquidity expressed in base-asset
	// units (the leg's sell-currency volume divided by the cumulative
	// conversion rate of prior legs).
	MinVolume float64
	// ProfitThreshold is the minimum aggregate rate for a candidate.
	ProfitThreshold float64
	// FeeRate is a per-leg taker-fee haircut applied to the aggregate rate.
	FeeRate float64
	// MaxResults halts enumeration once this many candidates were produced.
	MaxResults int
	// TimeBudget bounds the enumeration phase. A triangle already being
	// evaluated when the budget expires is allowed to complete.
	TimeBudget time.Duration
}

// Candidate is a ticker-confirmed triangle: the reportable cycle plus the
// three transitions live confirmation needs.
type Candidate struct {
	Cycle domain.Cycle
	Legs  [3]graph.Transition
}

// Result is the outcome of one enumeration pass.
type Result struct {
	Candidates    []Candidate
	TimeExhausted bool
	Took          time.Duration
}

// Engine searches the asset graph for triangular arbitrage candidates.
type Engine struct {
	graph  *graph.Graph
	logger *slog.Logger
}

// NewEngine creates an Engine over the given graph.
func NewEngine(g *graph.Graph, logger *slog.Logger) *Engine {
	return &Engine{
		graph:  g,
		logger: logger.With(slog.String("component", "search")),
	}
}

// FindCycles enumerates candidate triangles from the base asset. For every
// ordered pair of distinct neighbors (N1, N2) of the base B with an N1→N2
// edge, it combines the per-exchange transitions of B→N1→N2→B, filters each
// leg, and keeps combinations whose aggregate rate clears the profit
// threshold. Candidates are reported in discovery order; (N1,N2) and (N2,N1)
// are distinct directed cycles.
func (e *Engine) FindCycles(baseSymbol string, opts Options) (Result, error) {
	if !e.graph.HasVertex(baseSymbol) {
		return Result{}, fmt.Errorf("search: base asset %q: %w", baseSymbol, domain.ErrUnknownAsset)
	}

	opts = withDefaults(opts)
	start := time.Now()

	var whitelist map[string]struct{}
	if len(opts.Exchanges) > 0 {
		whitelist = make(map[string]struct{}, len(opts.Exchanges))
		for _, name := range opts.Exchanges {
			whitelist[name] = struct{}{}
		}
	}

	// Fee haircut applied once per leg.
	feeFactor := 1 - opts.FeeRate
	legFee := feeFactor * feeFactor * feeFactor

	res := Result{}
	neighbors := e.graph.Neighbors(baseSymbol)

enumerate:
	for _, n1 := range neighbors {
		for _, n2 := range neighbors {
			if n1 == n2 {
				continue
			}
			if _, ok := e.graph.FindEdge(n1, n2); !ok {
				continue
			}
			if opts.TimeBudget > 0 && time.Since(start) > opts.TimeBudget {
				res.TimeExhausted = true
				break enumerate
			}

			for _, t0 := range e.graph.Transitions(baseSymbol, n1) {
				if !admit(opts, whitelist, 0, 1, t0) {
					continue
				}
				r0 := t0.UnitCost
				for _, t1 := range e.graph.Transitions(n1, n2) {
					if !admit(opts, whitelist, 1, r0, t1) {
						continue
					}
					r1 := r0 * t1.UnitCost
					for _, t2 := range e.graph.Transitions(n2, baseSymbol) {
						if !admit(opts, whitelist, 2, r1, t2) {
							continue
						}

						rate := r1 * t2.UnitCost * legFee
						if rate <= opts.ProfitThreshold {
							continue
						}

						legs := [3]graph.Transition{t0, t1, t2}
						res.Candidates = append(res.Candidates, Candidate{
							Cycle: domain.Cycle{
								ID:      EncodeCycleID(legs),
								MaxRate: rate,
								Trades:  tradesFor(legs),
							},
							Legs: legs,
						})
						if opts.MaxResults > 0 && len(res.Candidates) >= opts.MaxResults {
							break enumerate
						}
					}
				}
			}
		}
	}

	res.Took = time.Since(start)
	e.logger.Debug("enumeration finished",
		slog.String("base", baseSymbol),
		slog.Int("candidates", len(res.Candidates)),
		slog.Bool("time_exhausted", res.TimeExhausted),
		slog.Duration("took", res.Took),
	)
	return res, nil
}

// admit is the candidate filter: it decides whether one materialized
// transition may join a triangle as leg legIndex, given the cumulative
// conversion rate of the prior legs.
func admit(opts Options, whitelist map[string]struct{}, legIndex int, cumRate float64, t graph.Transition) bool {
	if t.UnitCost <= 0 {
		return false
	}
	if legIndex == 0 && opts.StartingExchange != "" && t.Exchange != opts.StartingExchange {
		return false
	}
	if whitelist != nil {
		if _, ok := whitelist[t.Exchange]; !ok {
			return false
		}
	}
	if opts.MinVolume > 0 && t.VolumeInSellCurrency/cumRate < opts.MinVolume {
		return false
	}
	return true
}

func withDefaults(opts Options) Options {
	if opts.ProfitThreshold == 0 {
		opts.ProfitThreshold = DefaultProfitThreshold
	}
	return opts
}

// tradesFor builds the reportable trade records for a triangle. Each leg's
// relative volume is its sell-currency liquidity converted back to base-asset
// units through the prior legs' rates.
func tradesFor(legs [3]graph.Transition) []domain.CycleTrade {
	trades := make([]domain.CycleTrade, 0, len(legs))
	cumRate := 1.0
	for _, t := range legs {
		trades = append(trades, domain.CycleTrade{
			Sell:              t.Sell,
			Buy:               t.Buy,
			Exchange:          t.Exchange,
			UnitLastPrice:     t.LastPrice,
			UnitLastPriceDate: t.Date,
			RelativeVolume:    t.VolumeInSellCurrency / cumRate,
		})
		cumRate *= t.UnitCost
	}
	return trades
}
