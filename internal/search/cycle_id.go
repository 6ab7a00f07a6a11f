package search

import (
	"fmt"
	"strings"

	"github.com/xlabhq/triarb/internal/domain"
	"github.com/xlabhq/triarb/internal/graph"
)

// CycleLeg is one decoded leg of a cycle id.
type CycleLeg struct {
	Sell     string
	Buy      string
	Exchange string
}

// EncodeCycleID builds the stable identifier for a cycle:
// "sell0,exchange0,sell1,exchange1,sell2,exchange2".
func EncodeCycleID(legs [3]graph.Transition) string {
	parts := make([]string, 0, 2*len(legs))
	for _, t := range legs {
		parts = append(parts, t.Sell, t.Exchange)
	}
	return strings.Join(parts, ",")
}

// DecodeCycleID parses a cycle identifier back into its legs. The buy asset
// of each leg is the sell asset of the next, wrapping at the end. An id that
// does not split into a non-empty even number of components is malformed.
func DecodeCycleID(id string) ([]CycleLeg, error) {
	parts := strings.Split(id, ",")
	if len(parts) < 2 || len(parts)%2 != 0 {
		return nil, fmt.Errorf("search: cycle id %q: %w", id, domain.ErrMalformedCycleID)
	}

	n := len(parts) / 2
	legs := make([]CycleLeg, n)
	for i := 0; i < n; i++ {
		legs[i] = CycleLeg{
			Sell:     parts[2*i],
			Exchange: parts[2*i+1],
		}
	}
	for i := range legs {
		legs[i].Buy = legs[(i+1)%n].Sell
	}
	return legs, nil
}

// ResolveCycle re-resolves a previously issued cycle id against the current
// graph state. It returns domain.ErrUnknownAsset when a leg's sell symbol has
// never been seen, and domain.ErrStaleCycle when the graph has mutated such
// that a leg's edge or exchange quote no longer exists.
func (e *Engine) ResolveCycle(id string) ([]graph.Transition, error) {
	legs, err := DecodeCycleID(id)
	if err != nil {
		return nil, err
	}

	out := make([]graph.Transition, 0, len(legs))
	for _, leg := range legs {
		if !e.graph.HasVertex(leg.Sell) {
			return nil, fmt.Errorf("search: cycle %q leg %s: %w", id, leg.Sell, domain.ErrUnknownAsset)
		}
		t, ok := e.graph.TransitionByExchange(leg.Sell, leg.Buy, leg.Exchange)
		if !ok {
			return nil, fmt.Errorf("search: cycle %q leg %s→%s on %s: %w",
				id, leg.Sell, leg.Buy, leg.Exchange, domain.ErrStaleCycle)
		}
		out = append(out, t)
	}
	return out, nil
}
