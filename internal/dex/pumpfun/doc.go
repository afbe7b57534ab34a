// Package pumpfun decodes Pump.fun protocol data observed on the Solana blockchain.
//
// This package provides:
// - Decoding of Anchor events (CreateEvent, TradeEvent) from "Program data:" log lines.
// - Decoding of bonding curve account data and spot price / market cap math.
// - Derivation of the bonding curve PDA for a mint.
//
// Key Types and Functions:
//
// - Decoder: turns one logsSubscribe notification into zero or one domain event.
// - DecodeBondingCurve(): parses a bonding curve account fetched over RPC.
// - BondingCurvePDA(): derives the ["bonding-curve", mint] program address.
// - PriceFromAmounts(): lamports and raw token units to SOL per token.
//
// Detailed information can be found in the respective source files:
//   - config.go: program ids, discriminators and unit constants.
//   - types.go: Borsh layouts of events and accounts.
//   - decoder.go: log walking and event decoding.
//   - bonding_curve.go: account decoding and pricing.
//
// Usage example:
//
//	dec := pumpfun.NewDecoder(pumpfun.PumpFunProgramID)
//	ev, ok := dec.Decode(notification)
//	if !ok {
//	    return
//	}
//	switch e := ev.(type) {
//	case domain.NewToken:
//	    fmt.Println("new token", e.Symbol)
//	case domain.Trade:
//	    fmt.Println(e.Side, e.PriceInQuote)
//	}
package pumpfun
