// ==============================================
// File: internal/dex/pumpfun/bonding_curve.go
// ==============================================
package pumpfun

import (
	"bytes"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// ErrNotBondingCurve is returned for account data that is not a bonding curve.
var ErrNotBondingCurve = errors.New("pumpfun: not a bonding curve account")

// BondingCurvePDA derives the bonding curve address of a mint.
func BondingCurvePDA(mint, programID solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte(bondingCurveSeed), mint.Bytes()},
		programID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive bonding curve: %w", err)
	}
	return addr, nil
}

// DecodeBondingCurve parses raw account data, discriminator included.
func DecodeBondingCurve(data []byte) (*BondingCurve, error) {
	if len(data) < 8 || !bytes.Equal(data[:8], BondingCurveDiscriminator[:]) {
		return nil, ErrNotBondingCurve
	}

	var bc BondingCurve
	if err := bin.NewBorshDecoder(data[8:]).Decode(&bc); err != nil {
		return nil, fmt.Errorf("invalid bonding curve data: %w", err)
	}
	return &bc, nil
}

// Price returns the spot price in SOL per whole token from virtual reserves.
func (bc *BondingCurve) Price() float64 {
	return PriceFromAmounts(bc.VirtualSolReserves, bc.VirtualTokenReserves)
}

// MarketCap returns the market cap in SOL at the spot price.
func (bc *BondingCurve) MarketCap() float64 {
	supply := float64(bc.TokenTotalSupply) / TokenUnit
	if supply == 0 {
		supply = TotalSupplyTokens
	}
	return bc.Price() * supply
}

// PriceFromAmounts converts raw lamports and raw token units into SOL per token.
// Zero tokens yields zero.
func PriceFromAmounts(lamports, tokenUnits uint64) float64 {
	if tokenUnits == 0 {
		return 0
	}
	return (float64(lamports) / LamportsPerSOL) / (float64(tokenUnits) / TokenUnit)
}
