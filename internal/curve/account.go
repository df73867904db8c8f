// =============================
// File: internal/curve/account.go
// =============================
package curve

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Anchor account discriminators of the Pump.fun program.
var (
	BondingCurveDiscriminator = [8]byte{23, 183, 248, 55, 96, 216, 172, 96}
	GlobalDiscriminator       = [8]byte{167, 232, 232, 177, 200, 108, 114, 127}
)

// BondingCurveAccountSize is the number of bytes DecodeBondingCurveAccount reads.
const BondingCurveAccountSize = 8 + 5*8 + 1

// GlobalAccount is the program-wide configuration account.
type GlobalAccount struct {
	Initialized  bool
	Authority    solana.PublicKey
	FeeRecipient solana.PublicKey
	Curve        DefaultCurve
	FeeBps       uint16
}

// DecodeBondingCurveAccount parses a bonding curve account into a snapshot.
// Trailing bytes (creator and later fields) are ignored.
func DecodeBondingCurveAccount(data []byte) (ReserveState, error) {
	if len(data) < BondingCurveAccountSize {
		return ReserveState{}, fmt.Errorf("bonding curve account too short: %d bytes", len(data))
	}

	dec := bin.NewBorshDecoder(data)
	if err := readDiscriminator(dec, BondingCurveDiscriminator); err != nil {
		return ReserveState{}, fmt.Errorf("bonding curve account: %w", err)
	}

	var (
		state ReserveState
		err   error
	)
	// On-chain order: virtual token, virtual sol, real token, real sol, supply.
	fields := []*uint64{
		&state.VirtualQuoteReserves,
		&state.VirtualBaseReserves,
		&state.RealQuoteReserves,
		&state.RealBaseReserves,
		&state.TotalSupply,
	}
	for _, field := range fields {
		if *field, err = dec.ReadUint64(binary.LittleEndian); err != nil {
			return ReserveState{}, fmt.Errorf("failed to read bonding curve reserves: %w", err)
		}
	}
	if state.Complete, err = dec.ReadBool(); err != nil {
		return ReserveState{}, fmt.Errorf("failed to read bonding curve complete flag: %w", err)
	}

	return state, nil
}

// DecodeGlobalAccount parses the global account into the program's launch curve
// and fee.
func DecodeGlobalAccount(data []byte) (*GlobalAccount, error) {
	dec := bin.NewBorshDecoder(data)
	if err := readDiscriminator(dec, GlobalDiscriminator); err != nil {
		return nil, fmt.Errorf("global account: %w", err)
	}

	account := &GlobalAccount{}
	var err error
	if account.Initialized, err = dec.ReadBool(); err != nil {
		return nil, fmt.Errorf("failed to read initialized flag: %w", err)
	}
	if account.Authority, err = readPublicKey(dec); err != nil {
		return nil, fmt.Errorf("failed to read authority: %w", err)
	}
	if account.FeeRecipient, err = readPublicKey(dec); err != nil {
		return nil, fmt.Errorf("failed to read fee recipient: %w", err)
	}

	var values [5]uint64
	for i := range values {
		if values[i], err = dec.ReadUint64(binary.LittleEndian); err != nil {
			return nil, fmt.Errorf("failed to read global curve parameters: %w", err)
		}
	}
	virtualToken, virtualSol, realToken, totalSupply, feeBps := values[0], values[1], values[2], values[3], values[4]

	if feeBps > BasisPoints {
		return nil, fmt.Errorf("%w: global account fee %d", ErrInvalidFee, feeBps)
	}
	if totalSupply == 0 {
		return nil, fmt.Errorf("global account token supply is zero")
	}
	allocation, err := MulDiv(realToken, BasisPoints, totalSupply)
	if err != nil || allocation > BasisPoints {
		return nil, fmt.Errorf("global account allocation out of range: %d of %d", realToken, totalSupply)
	}

	account.FeeBps = uint16(feeBps)
	account.Curve = DefaultCurve{
		VirtualBaseReserves:  virtualSol,
		VirtualQuoteReserves: virtualToken,
		TotalSupply:          totalSupply,
		CurveAllocationBps:   uint16(allocation),
	}
	return account, nil
}

func readDiscriminator(dec *bin.Decoder, want [8]byte) error {
	got, err := dec.ReadNBytes(8)
	if err != nil {
		return fmt.Errorf("failed to read discriminator: %w", err)
	}
	if !bytes.Equal(got, want[:]) {
		return fmt.Errorf("unexpected discriminator %x", got)
	}
	return nil
}

func readPublicKey(dec *bin.Decoder) (solana.PublicKey, error) {
	raw, err := dec.ReadNBytes(32)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBytes(raw), nil
}
