// internal/pricing/bonding_curve.go
package pricing

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/pumpwatch/internal/dex/pumpfun"
)

// AccountReader reads raw account data. Implemented by solbc.Client.
type AccountReader interface {
	GetAccountData(ctx context.Context, pubkey solana.PublicKey) ([]byte, error)
}

// BondingCurveSource prices a mint from its on-chain bonding curve account.
type BondingCurveSource struct {
	reader    AccountReader
	programID solana.PublicKey
}

// NewBondingCurveSource creates a source reading through reader.
func NewBondingCurveSource(reader AccountReader, programID solana.PublicKey) *BondingCurveSource {
	if programID.IsZero() {
		programID = pumpfun.PumpFunProgramID
	}
	return &BondingCurveSource{reader: reader, programID: programID}
}

func (s *BondingCurveSource) Name() string { return "bonding_curve" }

// FetchPrice returns the spot price and market cap in SOL.
func (s *BondingCurveSource) FetchPrice(ctx context.Context, mint string) (Quote, error) {
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return Quote{}, fmt.Errorf("invalid mint %q: %w", mint, err)
	}

	curveAddr, err := pumpfun.BondingCurvePDA(mintKey, s.programID)
	if err != nil {
		return Quote{}, err
	}

	data, err := s.reader.GetAccountData(ctx, curveAddr)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to get bonding curve account: %w", err)
	}

	curve, err := pumpfun.DecodeBondingCurve(data)
	if err != nil {
		return Quote{}, err
	}
	if curve.Complete {
		return Quote{}, ErrCurveComplete
	}
	if curve.VirtualTokenReserves == 0 {
		return Quote{}, fmt.Errorf("bonding curve %s has no token reserves", curveAddr)
	}

	mc := curve.MarketCap()
	return Quote{
		Price:     curve.Price(),
		MarketCap: &mc,
	}, nil
}
