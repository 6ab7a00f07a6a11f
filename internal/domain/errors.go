package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrUnknownAsset     = errors.New("asset not in graph")
	ErrMalformedCycleID = errors.New("malformed cycle id")
	ErrStaleCycle       = errors.New("cycle no longer resolvable")
	ErrUnknownExchange  = errors.New("exchange not configured")
	ErrNoMarketSymbol   = errors.New("no market symbol for trade pair")
)
