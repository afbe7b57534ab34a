// ==============================================
// File: internal/dex/pumpfun/decoder_test.go
// ==============================================
package pumpfun

import (
	"bytes"
	"encoding/base64"
	"testing"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/pumpwatch/internal/domain"
	"github.com/rovshanmuradov/pumpwatch/internal/feed"
)

var (
	testMint  = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	testUser  = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	testCurve = solana.MustPublicKeyFromBase58("SysvarRent111111111111111111111111111111111")
	testSig   = base58.Encode(bytes.Repeat([]byte{7}, 64))
)

func encodeEvent(t *testing.T, disc [8]byte, v any) string {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(disc[:])
	require.NoError(t, bin.NewBorshEncoder(&buf).Encode(v))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func programLogs(data ...string) []string {
	logs := []string{
		"Program ComputeBudget111111111111111111111111111111 invoke [1]",
		"Program ComputeBudget111111111111111111111111111111 success",
		"Program 6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P invoke [1]",
		"Program log: Instruction: Buy",
	}
	for _, d := range data {
		logs = append(logs, "Program data: "+d)
	}
	return append(logs,
		"Program 6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P consumed 34000 of 200000 compute units",
		"Program 6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P success",
	)
}

func notificationWith(logs []string) feed.Notification {
	return feed.Notification{
		Signature:  testSig,
		Slot:       42,
		Logs:       logs,
		ReceivedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func buyEvent(isBuy bool, ts int64) tradeEvent {
	return tradeEvent{
		Mint:                 testMint,
		SolAmount:            500_000_000,    // 0.5 SOL
		TokenAmount:          10_000_000_000, // 10,000 tokens
		IsBuy:                isBuy,
		User:                 testUser,
		Timestamp:            ts,
		VirtualSolReserves:   31_000_000_000,
		VirtualTokenReserves: 1_000_000_000_000_000,
	}
}

func TestDecodeTrade(t *testing.T) {
	d := NewDecoder(solana.PublicKey{})
	pda, err := BondingCurvePDA(testMint, PumpFunProgramID)
	require.NoError(t, err)

	tests := []struct {
		name       string
		isBuy      bool
		wantSide   domain.Side
		wantBuyer  string
		wantSeller string
	}{
		{"buy", true, domain.SideBuy, testUser.String(), pda.String()},
		{"sell", false, domain.SideSell, pda.String(), testUser.String()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := notificationWith(programLogs(encodeEvent(t, TradeEventDiscriminator, buyEvent(tt.isBuy, 1714564800))))

			ev, ok := d.Decode(n)
			require.True(t, ok)
			trade, ok := ev.(domain.Trade)
			require.True(t, ok)

			assert.Equal(t, domain.KindTrade, trade.Kind())
			assert.Equal(t, testMint.String(), trade.Mint)
			assert.Equal(t, testSig, trade.Signature)
			assert.Equal(t, uint64(42), trade.Slot)
			assert.Equal(t, time.Unix(1714564800, 0).UTC(), trade.Timestamp)
			assert.Equal(t, tt.wantSide, trade.Side)
			assert.Equal(t, tt.wantBuyer, trade.Buyer)
			assert.Equal(t, tt.wantSeller, trade.Seller)
			assert.Equal(t, testUser.String(), trade.Trader)
			assert.InDelta(t, 0.00005, trade.PriceInQuote, 1e-12)
			assert.InDelta(t, 10_000.0, trade.BaseAmount, 1e-9)
			assert.InDelta(t, 0.5, trade.QuoteAmount, 1e-12)
		})
	}
}

func TestDecodeTradeUsesReceivedAtWithoutTimestamp(t *testing.T) {
	d := NewDecoder(PumpFunProgramID)
	n := notificationWith(programLogs(encodeEvent(t, TradeEventDiscriminator, buyEvent(true, 0))))

	ev, ok := d.Decode(n)
	require.True(t, ok)
	assert.Equal(t, n.ReceivedAt, ev.Meta().Timestamp)
}

func TestDecodeCreate(t *testing.T) {
	d := NewDecoder(PumpFunProgramID)
	creator := solana.MustPublicKeyFromBase58("Vote111111111111111111111111111111111111111")

	t.Run("v2 layout", func(t *testing.T) {
		payload := encodeEvent(t, CreateEventDiscriminator, createEventV2{
			Name: "Doge Two", Symbol: "DOGE2", URI: "https://ipfs.io/x",
			Mint: testMint, BondingCurve: testCurve, User: testUser,
			Creator: creator, Timestamp: 1714564800,
		})

		ev, ok := d.Decode(notificationWith(programLogs(payload)))
		require.True(t, ok)
		tok, ok := ev.(domain.NewToken)
		require.True(t, ok)
		assert.Equal(t, "Doge Two", tok.Name)
		assert.Equal(t, "DOGE2", tok.Symbol)
		assert.Equal(t, testCurve.String(), tok.BondingCurve)
		assert.Equal(t, creator.String(), tok.Creator)
		assert.Equal(t, time.Unix(1714564800, 0).UTC(), tok.Timestamp)
	})

	t.Run("v1 layout", func(t *testing.T) {
		payload := encodeEvent(t, CreateEventDiscriminator, createEventV1{
			Name: "Old", Symbol: "OLD", URI: "u",
			Mint: testMint, BondingCurve: testCurve, User: testUser,
		})
		n := notificationWith(programLogs(payload))

		ev, ok := d.Decode(n)
		require.True(t, ok)
		tok := ev.(domain.NewToken)
		assert.Equal(t, testUser.String(), tok.Creator)
		assert.Equal(t, n.ReceivedAt, tok.Timestamp)
	})
}

func TestDecodeFirstEventWins(t *testing.T) {
	d := NewDecoder(PumpFunProgramID)
	create := encodeEvent(t, CreateEventDiscriminator, createEventV1{
		Name: "A", Symbol: "A", URI: "u", Mint: testMint, BondingCurve: testCurve, User: testUser,
	})
	trade := encodeEvent(t, TradeEventDiscriminator, buyEvent(true, 1))

	ev, ok := d.Decode(notificationWith(programLogs(create, trade)))
	require.True(t, ok)
	assert.Equal(t, domain.KindNewToken, ev.Kind())
}

func TestDecodeNone(t *testing.T) {
	d := NewDecoder(PumpFunProgramID)
	good := encodeEvent(t, TradeEventDiscriminator, buyEvent(true, 1))
	raw, _ := base64.StdEncoding.DecodeString(good)
	truncated := base64.StdEncoding.EncodeToString(raw[:40])

	zeroTokens := buyEvent(true, 1)
	zeroTokens.TokenAmount = 0

	tests := []struct {
		name string
		n    feed.Notification
	}{
		{"failed transaction", func() feed.Notification {
			n := notificationWith(programLogs(good))
			n.Err = map[string]any{"InstructionError": []any{0, "Custom"}}
			return n
		}()},
		{"bad signature", func() feed.Notification {
			n := notificationWith(programLogs(good))
			n.Signature = "not-a-signature"
			return n
		}()},
		{"no program data", notificationWith(programLogs())},
		{"invalid base64", notificationWith(programLogs("!!!not base64!!!"))},
		{"truncated payload", notificationWith(programLogs(truncated))},
		{"unknown discriminator", notificationWith(programLogs(encodeEvent(t, BondingCurveDiscriminator, buyEvent(true, 1))))},
		{"zero token amount", notificationWith(programLogs(encodeEvent(t, TradeEventDiscriminator, zeroTokens)))},
		{"emitted by another program", notificationWith([]string{
			"Program 6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P invoke [1]",
			"Program JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4 invoke [2]",
			"Program data: " + good,
			"Program JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4 success",
			"Program 6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P success",
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := d.Decode(tt.n)
			assert.False(t, ok)
			assert.Nil(t, ev)
		})
	}
}

func TestDecodeDeterministic(t *testing.T) {
	d := NewDecoder(PumpFunProgramID)
	n := notificationWith(programLogs(encodeEvent(t, TradeEventDiscriminator, buyEvent(false, 0))))

	first, ok1 := d.Decode(n)
	second, ok2 := d.Decode(n)
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, first, second)
}

func TestDecodeWithoutInvokeLines(t *testing.T) {
	d := NewDecoder(PumpFunProgramID)
	n := notificationWith([]string{"Program data: " + encodeEvent(t, TradeEventDiscriminator, buyEvent(true, 1))})

	_, ok := d.Decode(n)
	assert.True(t, ok)
}
