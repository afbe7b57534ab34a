// =============================
// File: internal/dex/pumpfun/types.go
// =============================
package pumpfun

import (
	"github.com/gagliardetto/solana-go"
)

// createEventV1 is the original CreateEvent layout.
type createEventV1 struct {
	Name         string
	Symbol       string
	URI          string
	Mint         solana.PublicKey
	BondingCurve solana.PublicKey
	User         solana.PublicKey
}

// createEventV2 extends V1 with the creator and a unix timestamp.
type createEventV2 struct {
	Name         string
	Symbol       string
	URI          string
	Mint         solana.PublicKey
	BondingCurve solana.PublicKey
	User         solana.PublicKey
	Creator      solana.PublicKey
	Timestamp    int64
}

// tradeEvent is the leading part of TradeEvent. Newer program versions append
// fee and creator fields which are not needed here.
type tradeEvent struct {
	Mint                 solana.PublicKey
	SolAmount            uint64
	TokenAmount          uint64
	IsBuy                bool
	User                 solana.PublicKey
	Timestamp            int64
	VirtualSolReserves   uint64
	VirtualTokenReserves uint64
}

// BondingCurve is the decoded bonding curve account, without its discriminator.
type BondingCurve struct {
	VirtualTokenReserves uint64
	VirtualSolReserves   uint64
	RealTokenReserves    uint64
	RealSolReserves      uint64
	TokenTotalSupply     uint64
	Complete             bool
}
