package core

import "fmt"

// ExpiryFormat is the wire format for expiry dates (YYYY-MM-DD)
const ExpiryFormat = "2006-01-02"

// Greeks holds the pre-computed greeks supplied by the upstream provider
type Greeks struct {
	Delta float64 `json:"delta"`
	Theta float64 `json:"theta"`
	Gamma float64 `json:"gamma"`
	Vega  float64 `json:"vega"`
}

// OptionLeg is one side (CE or PE) of a strike in the raw chain payload
type OptionLeg struct {
	Greeks            Greeks  `json:"greeks"`
	ImpliedVolatility float64 `json:"implied_volatility"`
	OI                int64   `json:"oi"`
	Volume            int64   `json:"volume"`
	LastPrice         float64 `json:"last_price"`
}

// StrikeLegs pairs the optional call and put legs at one strike.
// A missing leg is a nil pointer, not a zero value.
type StrikeLegs struct {
	CE *OptionLeg `json:"ce,omitempty"`
	PE *OptionLeg `json:"pe,omitempty"`
}

// OptionChain is one upstream fetch result for an (instrument, expiry).
// Consumed immediately by ingestion; never persisted verbatim.
type OptionChain struct {
	LastPrice float64               `json:"last_price"`
	Strikes   map[string]StrikeLegs `json:"oc"`
}

// Validate rejects structurally unusable payloads before ingestion
func (c *OptionChain) Validate() error {
	if c == nil {
		return fmt.Errorf("option chain is nil")
	}
	if c.LastPrice <= 0 {
		return fmt.Errorf("option chain has no underlying price")
	}
	if len(c.Strikes) == 0 {
		return fmt.Errorf("option chain has no strikes")
	}
	return nil
}
