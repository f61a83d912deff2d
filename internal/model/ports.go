package model

// ── Collaborator Port Interfaces ──
// These interfaces decouple the detection/scoring core from the host
// platform. The core depends only on these, never on broker or chart types.

// MarketDataSource supplies completed bars per timeframe, oldest-first,
// newest-last. Implementations must never include the forming bar.
type MarketDataSource interface {
	// Bars returns the completed bars for a symbol and timeframe.
	// An empty slice means the series is not ready yet.
	Bars(symbol string, tf Timeframe) []Bar
}

// OrderGateway accepts finalized trade signals and answers the position
// queries the policy gates need. State (open positions, daily counts) is
// owned by the gateway, not by the core.
type OrderGateway interface {
	// OpenFromSignal opens a position from an admitted signal.
	OpenFromSignal(sig *TradeSignal) error

	// OpenPositions returns the number of currently open positions
	// for a symbol.
	OpenPositions(symbol string) int

	// TradesToday returns the number of trades opened for a symbol
	// since the last daily boundary.
	TradesToday(symbol string) int
}
