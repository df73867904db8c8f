// =============================
// File: internal/ledger/solana.go
// =============================
package ledger

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpcurve/internal/blockchain"
	"github.com/rovshanmuradov/pumpcurve/internal/curve"
)

// PumpFunProgramID is the mainnet address of the Pump.fun program.
const PumpFunProgramID = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"

// BondingCurveAddress derives the bonding curve PDA of a mint.
func BondingCurveAddress(mint, programID solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("bonding-curve"), mint.Bytes()},
		programID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive bonding curve: %w", err)
	}
	return addr, nil
}

// GlobalAddress derives the program's global account PDA.
func GlobalAddress(programID solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte("global")}, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive global account: %w", err)
	}
	return addr, nil
}

// SolanaOracle reads reserve states of Pump.fun curves over JSON-RPC. Token IDs
// are base58 mint addresses.
type SolanaOracle struct {
	reader    blockchain.AccountReader
	programID solana.PublicKey
	logger    *zap.Logger
}

func NewSolanaOracle(reader blockchain.AccountReader, programID solana.PublicKey, logger *zap.Logger) *SolanaOracle {
	return &SolanaOracle{
		reader:    reader,
		programID: programID,
		logger:    logger.Named("solana-oracle"),
	}
}

// FetchReserveState reads and decodes the bonding curve account of a mint.
func (o *SolanaOracle) FetchReserveState(ctx context.Context, tokenID string) (curve.ReserveState, error) {
	addr, err := o.curveAddress(tokenID)
	if err != nil {
		return curve.ReserveState{}, err
	}

	info, err := o.reader.GetAccountInfo(ctx, addr)
	if err != nil {
		return curve.ReserveState{}, fmt.Errorf("failed to get bonding curve account: %w", err)
	}
	if info == nil || info.Value == nil {
		return curve.ReserveState{}, fmt.Errorf("bonding curve account not found: %s", addr)
	}

	state, err := o.decodeCurve(info.Value)
	if err != nil {
		return curve.ReserveState{}, fmt.Errorf("%s: %w", tokenID, err)
	}

	o.logger.Debug("Bonding curve fetched",
		zap.String("mint", tokenID),
		zap.String("address", addr.String()),
		zap.Uint64("virtual_base", state.VirtualBaseReserves),
		zap.Uint64("virtual_quote", state.VirtualQuoteReserves),
		zap.Bool("complete", state.Complete))
	return state, nil
}

// FetchReserveStates reads several curves in one request. Missing accounts are
// left out of the result.
func (o *SolanaOracle) FetchReserveStates(ctx context.Context, tokenIDs []string) (map[string]curve.ReserveState, error) {
	addrs := make([]solana.PublicKey, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		addr, err := o.curveAddress(id)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}

	res, err := o.reader.GetMultipleAccounts(ctx, addrs)
	if err != nil {
		return nil, fmt.Errorf("failed to get bonding curve accounts: %w", err)
	}

	states := make(map[string]curve.ReserveState, len(tokenIDs))
	for i, account := range res.Value {
		if i >= len(tokenIDs) || account == nil {
			continue
		}
		state, err := o.decodeCurve(account)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", tokenIDs[i], err)
		}
		states[tokenIDs[i]] = state
	}
	return states, nil
}

// FetchGlobal reads the program's launch curve and fee.
func (o *SolanaOracle) FetchGlobal(ctx context.Context) (*curve.GlobalAccount, error) {
	addr, err := GlobalAddress(o.programID)
	if err != nil {
		return nil, err
	}

	info, err := o.reader.GetAccountInfo(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to get global account: %w", err)
	}
	if info == nil || info.Value == nil {
		return nil, fmt.Errorf("global account not found: %s", addr)
	}
	if !info.Value.Owner.Equals(o.programID) {
		return nil, fmt.Errorf("global account has incorrect owner: expected %s, got %s",
			o.programID, info.Value.Owner)
	}

	global, err := curve.DecodeGlobalAccount(info.Value.Data.GetBinary())
	if err != nil {
		return nil, err
	}

	o.logger.Info("Global account data parsed successfully",
		zap.Bool("initialized", global.Initialized),
		zap.String("fee_recipient", global.FeeRecipient.String()),
		zap.Uint16("fee_basis_points", global.FeeBps))
	return global, nil
}

func (o *SolanaOracle) curveAddress(tokenID string) (solana.PublicKey, error) {
	mint, err := solana.PublicKeyFromBase58(tokenID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid mint %q: %w", tokenID, err)
	}
	return BondingCurveAddress(mint, o.programID)
}

func (o *SolanaOracle) decodeCurve(account *rpc.Account) (curve.ReserveState, error) {
	if !account.Owner.Equals(o.programID) {
		return curve.ReserveState{}, fmt.Errorf("bonding curve has incorrect owner: expected %s, got %s",
			o.programID, account.Owner)
	}
	return curve.DecodeBondingCurveAccount(account.Data.GetBinary())
}
