package settlement

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpcurve/internal/curve"
	"github.com/rovshanmuradov/pumpcurve/internal/ledger"
)

func intentFor(s *Settlement, nonce uint64) ledger.TradeIntent {
	return ledger.TradeIntent{
		TokenID:     s.TokenID,
		Direction:   s.Request.Direction,
		InputAmount: s.Request.InputAmount,
		MinOutput:   s.MinOutput,
		Nonce:       nonce,
	}
}

func TestStaleSnapshotLosesToLedger(t *testing.T) {
	ctx := context.Background()
	book := ledger.NewMemory(curve.DefaultFeeBps, zap.NewNop())
	require.NoError(t, book.CreateCurve(testToken, defaultState(t)))

	c, err := NewCoordinator(book, nil, DefaultOptions(), zap.NewNop())
	require.NoError(t, err)

	alice, err := ledger.NewRandomSigner()
	require.NoError(t, err)
	bob, err := ledger.NewRandomSigner()
	require.NoError(t, err)

	req := curve.TradeRequest{Direction: curve.Buy, InputAmount: 2_000_000_000}

	// Both settle against the same committed state.
	first, err := c.Settle(ctx, testToken, req)
	require.NoError(t, err)
	second, err := c.Settle(ctx, testToken, req)
	require.NoError(t, err)
	require.Equal(t, first.Prior, second.Prior)

	signed, err := alice.Sign(intentFor(first, 0))
	require.NoError(t, err)
	_, err = book.SubmitTrade(ctx, signed)
	require.NoError(t, err)

	signed, err = bob.Sign(intentFor(second, 0))
	require.NoError(t, err)
	_, err = book.SubmitTrade(ctx, signed)
	require.ErrorIs(t, err, curve.ErrSlippageExceeded)

	// The loser re-fetches and re-simulates; its fresh settlement commits.
	retry, err := c.Settle(ctx, testToken, req)
	require.NoError(t, err)
	assert.NotEqual(t, second.Prior, retry.Prior)
	assert.Less(t, retry.Outcome.OutputAmount, second.Outcome.OutputAmount)

	signed, err = bob.Sign(intentFor(retry, 1))
	require.NoError(t, err)
	record, err := book.SubmitTrade(ctx, signed)
	require.NoError(t, err)
	assert.Equal(t, retry.Outcome.OutputAmount, record.Outcome.OutputAmount)
	assert.Len(t, book.Records(testToken), 2)
}

func TestSettleAfterLedgerCompletes(t *testing.T) {
	ctx := context.Background()
	book := ledger.NewMemory(curve.DefaultFeeBps, zap.NewNop())
	require.NoError(t, book.CreateCurve(testToken, defaultState(t)))
	require.NoError(t, book.MarkComplete(testToken))

	c, err := NewCoordinator(book, nil, DefaultOptions(), zap.NewNop())
	require.NoError(t, err)

	_, err = c.Settle(ctx, testToken, curve.TradeRequest{Direction: curve.Buy, InputAmount: 1_000_000_000})
	assert.ErrorIs(t, err, curve.ErrCurveClosed)
}
