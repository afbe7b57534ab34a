// ==============================================
// File: internal/dex/pumpfun/decoder.go
// ==============================================
package pumpfun

import (
	"bytes"
	"encoding/base64"
	"strings"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"github.com/rovshanmuradov/pumpwatch/internal/domain"
	"github.com/rovshanmuradov/pumpwatch/internal/feed"
)

const (
	programDataPrefix = "Program data: "
	programPrefix     = "Program "
)

// Decoder turns logsSubscribe notifications into domain events. It holds no
// mutable state: the same notification always decodes to the same result.
type Decoder struct {
	programID solana.PublicKey
	program   string
}

// NewDecoder creates a decoder for the given program. A zero key selects the
// main Pump.fun program.
func NewDecoder(programID solana.PublicKey) *Decoder {
	if programID.IsZero() {
		programID = PumpFunProgramID
	}
	return &Decoder{
		programID: programID,
		program:   programID.String(),
	}
}

// Decode returns the first Pump.fun event found in the notification logs.
// Failed transactions, unrelated logs and malformed payloads yield false.
func (d *Decoder) Decode(n feed.Notification) (domain.Event, bool) {
	if n.Failed() || !validSignature(n.Signature) {
		return nil, false
	}

	for _, payload := range d.eventPayloads(n.Logs) {
		if ev, ok := d.decodePayload(n, payload); ok {
			return ev, true
		}
	}
	return nil, false
}

// eventPayloads collects the base64 "Program data" entries emitted while the
// program is executing. When logs carry no invoke lines, every entry is kept.
func (d *Decoder) eventPayloads(logs []string) [][]byte {
	var (
		stack    []string
		payloads [][]byte
	)

	for _, line := range logs {
		if rest, ok := strings.CutPrefix(line, programDataPrefix); ok {
			if len(stack) > 0 && stack[len(stack)-1] != d.program {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(rest))
			if err != nil || len(data) < 8 {
				continue
			}
			payloads = append(payloads, data)
			continue
		}

		rest, ok := strings.CutPrefix(line, programPrefix)
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) < 2 {
			continue
		}
		switch {
		case fields[1] == "invoke":
			stack = append(stack, fields[0])
		case fields[1] == "success" || strings.HasPrefix(fields[1], "failed"):
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	return payloads
}

func (d *Decoder) decodePayload(n feed.Notification, data []byte) (domain.Event, bool) {
	disc, body := data[:8], data[8:]
	switch {
	case bytes.Equal(disc, TradeEventDiscriminator[:]):
		return d.decodeTrade(n, body)
	case bytes.Equal(disc, CreateEventDiscriminator[:]):
		return d.decodeCreate(n, body)
	default:
		return nil, false
	}
}

func (d *Decoder) decodeTrade(n feed.Notification, body []byte) (domain.Event, bool) {
	var ev tradeEvent
	if err := bin.NewBorshDecoder(body).Decode(&ev); err != nil {
		return nil, false
	}
	if ev.Mint.IsZero() || ev.User.IsZero() || ev.TokenAmount == 0 {
		return nil, false
	}

	curve, err := BondingCurvePDA(ev.Mint, d.programID)
	if err != nil {
		return nil, false
	}

	trade := domain.Trade{
		EventMeta:            d.meta(n, ev.Mint, ev.Timestamp),
		Trader:               ev.User.String(),
		PriceInQuote:         PriceFromAmounts(ev.SolAmount, ev.TokenAmount),
		BaseAmount:           float64(ev.TokenAmount) / TokenUnit,
		QuoteAmount:          float64(ev.SolAmount) / LamportsPerSOL,
		BaseRaw:              ev.TokenAmount,
		QuoteRaw:             ev.SolAmount,
		VirtualSolReserves:   ev.VirtualSolReserves,
		VirtualTokenReserves: ev.VirtualTokenReserves,
	}
	// The side receiving the base token is the buyer.
	if ev.IsBuy {
		trade.Side = domain.SideBuy
		trade.Buyer, trade.Seller = ev.User.String(), curve.String()
	} else {
		trade.Side = domain.SideSell
		trade.Buyer, trade.Seller = curve.String(), ev.User.String()
	}
	return trade, true
}

func (d *Decoder) decodeCreate(n feed.Notification, body []byte) (domain.Event, bool) {
	var v2 createEventV2
	if err := bin.NewBorshDecoder(body).Decode(&v2); err != nil {
		var v1 createEventV1
		if err := bin.NewBorshDecoder(body).Decode(&v1); err != nil {
			return nil, false
		}
		v2 = createEventV2{
			Name:         v1.Name,
			Symbol:       v1.Symbol,
			URI:          v1.URI,
			Mint:         v1.Mint,
			BondingCurve: v1.BondingCurve,
			User:         v1.User,
			Creator:      v1.User,
		}
	}
	if v2.Mint.IsZero() || v2.BondingCurve.IsZero() {
		return nil, false
	}

	creator := v2.Creator
	if creator.IsZero() {
		creator = v2.User
	}

	return domain.NewToken{
		EventMeta:    d.meta(n, v2.Mint, v2.Timestamp),
		Name:         v2.Name,
		Symbol:       v2.Symbol,
		URI:          v2.URI,
		BondingCurve: v2.BondingCurve.String(),
		Creator:      creator.String(),
	}, true
}

func (d *Decoder) meta(n feed.Notification, mint solana.PublicKey, unix int64) domain.EventMeta {
	ts := n.ReceivedAt
	if unix > 0 {
		ts = time.Unix(unix, 0).UTC()
	}
	return domain.EventMeta{
		Mint:      mint.String(),
		Signature: n.Signature,
		Slot:      n.Slot,
		Timestamp: ts,
	}
}

func validSignature(sig string) bool {
	if sig == "" {
		return false
	}
	raw, err := base58.Decode(sig)
	return err == nil && len(raw) == 64
}
