// Package graph maintains the in-memory directed multigraph of assets and
// per-exchange market quotes that the cycle search runs against. Vertices,
// edges, and market pairs are created lazily on first reference and live for
// the process lifetime; ticker updates mutate pairs in place.
package graph

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/xlabhq/triarb/internal/domain"
)

// Asset is an immutable value identified by its symbol.
type Asset struct {
	Symbol string
}

// MarketPair is the mutable quote state for one (directed pair, exchange)
// triple. Identity is stable; values are overwritten as tickers arrive.
type MarketPair struct {
	Exchange   string
	Base       string
	Market     string
	LastPrice  float64
	BestAsk    float64 // 0 when unknown
	BestBid    float64 // 0 when unknown
	BaseVolume float64
	Date       time.Time
}

// Vertex owns an asset and its ordered outgoing edges, one per distinct
// neighboring asset it has ever traded against.
type Vertex struct {
	Asset Asset
	edges []*Edge
}

// Edge is a directed start→end relationship. The two directional edges of a
// traded pair share one pairs map, so a quote update through either direction
// is visible from both.
type Edge struct {
	Start *Vertex
	End   *Vertex
	pairs map[string]*MarketPair // exchange name → shared quote record
}

// Exchanges returns the exchange names quoting this edge, sorted for
// deterministic enumeration.
func (e *Edge) Exchanges() []string {
	names := make([]string, 0, len(e.pairs))
	for name := range e.pairs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Graph is the asset graph. All exported methods are safe for concurrent use;
// quote ingestion takes the write lock, searches read under the read lock.
type Graph struct {
	mu       sync.RWMutex
	vertices map[string]*Vertex
	edges    map[string]*Edge // "START-END" → edge
	logger   *slog.Logger
}

// New creates an empty Graph.
func New(logger *slog.Logger) *Graph {
	return &Graph{
		vertices: make(map[string]*Vertex),
		edges:    make(map[string]*Edge),
		logger:   logger.With(slog.String("component", "graph")),
	}
}

func edgeKey(start, end string) string { return start + "-" + end }

// GetOrCreateVertex returns the vertex for symbol, creating it on first
// reference.
func (g *Graph) GetOrCreateVertex(symbol string) *Vertex {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.getOrCreateVertexLocked(symbol)
}

func (g *Graph) getOrCreateVertexLocked(symbol string) *Vertex {
	if v, ok := g.vertices[symbol]; ok {
		return v
	}
	v := &Vertex{Asset: Asset{Symbol: symbol}}
	g.vertices[symbol] = v
	return v
}

// GetOrCreateEdge returns the directed start→end edge, creating it together
// with its reverse on first reference. Both directions share one pairs map.
func (g *Graph) GetOrCreateEdge(start, end string) *Edge {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.getOrCreateEdgeLocked(start, end)
}

func (g *Graph) getOrCreateEdgeLocked(start, end string) *Edge {
	if e, ok := g.edges[edgeKey(start, end)]; ok {
		return e
	}

	sv := g.getOrCreateVertexLocked(start)
	ev := g.getOrCreateVertexLocked(end)

	pairs := make(map[string]*MarketPair)
	forward := &Edge{Start: sv, End: ev, pairs: pairs}
	reverse := &Edge{Start: ev, End: sv, pairs: pairs}
	g.edges[edgeKey(start, end)] = forward
	g.edges[edgeKey(end, start)] = reverse
	sv.edges = append(sv.edges, forward)
	ev.edges = append(ev.edges, reverse)

	g.logger.Debug("created edge pair",
		slog.String("start", start),
		slog.String("end", end),
	)
	return forward
}

// UpsertQuote applies a ticker to the graph: it locates or creates the
// base→market edge and overwrites the mutable fields of that exchange's
// MarketPair. This is the sole mutation entry point for ticker ingestion.
func (g *Graph) UpsertQuote(t domain.MarketTicker) {
	g.mu.Lock()
	defer g.mu.Unlock()

	edge := g.getOrCreateEdgeLocked(t.BaseSymbol, t.MarketSymbol)
	pair, ok := edge.pairs[t.Exchange]
	if !ok {
		pair = &MarketPair{
			Exchange: t.Exchange,
			Base:     t.BaseSymbol,
			Market:   t.MarketSymbol,
		}
		edge.pairs[t.Exchange] = pair
	}
	pair.LastPrice = t.LastPrice
	pair.BestAsk = t.BestAsk
	pair.BestBid = t.BestBid
	pair.BaseVolume = t.BaseVolume
	pair.Date = t.Timestamp
}

// HasVertex reports whether symbol is present in the graph.
func (g *Graph) HasVertex(symbol string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.vertices[symbol]
	return ok
}

// Symbols returns every asset symbol known to the graph, sorted.
func (g *Graph) Symbols() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]string, 0, len(g.vertices))
	for sym := range g.vertices {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// FindEdge returns the directed start→end edge if it exists.
func (g *Graph) FindEdge(start, end string) (*Edge, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.edges[edgeKey(start, end)]
	return e, ok
}

// Neighbors returns the end symbols of the vertex's outgoing edges, in edge
// creation order. The result is empty when symbol is unknown.
func (g *Graph) Neighbors(symbol string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	v, ok := g.vertices[symbol]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(v.edges))
	for _, e := range v.edges {
		out = append(out, e.End.Asset.Symbol)
	}
	return out
}

// VertexCount returns the number of assets in the graph.
func (g *Graph) VertexCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.vertices)
}

// EdgeCount returns the number of directed edges in the graph.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}
