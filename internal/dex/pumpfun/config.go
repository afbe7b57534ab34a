// =============================
// File: internal/dex/pumpfun/config.go
// =============================
package pumpfun

import (
	"github.com/gagliardetto/solana-go"
)

// Known Pump.fun protocol addresses
var (
	// Program ID for Pump.fun protocol
	PumpFunProgramID = solana.MustPublicKeyFromBase58("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")

	// Event authority for the Pump.fun protocol
	PumpFunEventAuth = solana.MustPublicKeyFromBase58("Ce6TQqeHC9p8KetsN6JsjHK7UTZk7nasjjnr7XxXp9F1")
)

// Anchor discriminators: sha256("event:<Name>")[:8] for events and
// sha256("account:<Name>")[:8] for accounts.
var (
	CreateEventDiscriminator  = [8]byte{27, 114, 169, 77, 222, 83, 147, 192}
	TradeEventDiscriminator   = [8]byte{189, 219, 127, 211, 78, 230, 97, 238}
	BondingCurveDiscriminator = [8]byte{23, 183, 248, 55, 96, 216, 172, 96}
)

const (
	// LamportsPerSOL is the quote (SOL) scale.
	LamportsPerSOL = 1e9
	// TokenDecimals is the decimals count of every Pump.fun mint.
	TokenDecimals = 6
	// TokenUnit is 10^TokenDecimals.
	TokenUnit = 1e6
	// TotalSupplyTokens is the fixed supply minted for every bonding-curve token.
	TotalSupplyTokens = 1_000_000_000

	bondingCurveSeed = "bonding-curve"
)
