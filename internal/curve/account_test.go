package curve

import (
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bondingCurveLayout struct {
	Discriminator        [8]byte
	VirtualTokenReserves uint64
	VirtualSolReserves   uint64
	RealTokenReserves    uint64
	RealSolReserves      uint64
	TokenTotalSupply     uint64
	Complete             bool
	Creator              solana.PublicKey
}

type globalLayout struct {
	Discriminator               [8]byte
	Initialized                 bool
	Authority                   solana.PublicKey
	FeeRecipient                solana.PublicKey
	InitialVirtualTokenReserves uint64
	InitialVirtualSolReserves   uint64
	InitialRealTokenReserves    uint64
	TokenTotalSupply            uint64
	FeeBasisPoints              uint64
}

func TestDecodeBondingCurveAccount(t *testing.T) {
	data, err := bin.MarshalBorsh(&bondingCurveLayout{
		Discriminator:        BondingCurveDiscriminator,
		VirtualTokenReserves: 1_038_722_168_441_432,
		VirtualSolReserves:   30_990_000_000,
		RealTokenReserves:    758_822_168_441_432,
		RealSolReserves:      990_000_000,
		TokenTotalSupply:     DefaultTotalSupply,
		Complete:             true,
		Creator:              solana.SystemProgramID,
	})
	require.NoError(t, err)

	state, err := DecodeBondingCurveAccount(data)
	require.NoError(t, err)

	assert.Equal(t, ReserveState{
		VirtualBaseReserves:  30_990_000_000,
		VirtualQuoteReserves: 1_038_722_168_441_432,
		RealBaseReserves:     990_000_000,
		RealQuoteReserves:    758_822_168_441_432,
		TotalSupply:          DefaultTotalSupply,
		Complete:             true,
	}, state)
}

func TestDecodeBondingCurveAccountRejectsBadData(t *testing.T) {
	_, err := DecodeBondingCurveAccount(make([]byte, 16))
	assert.Error(t, err)

	data, err := bin.MarshalBorsh(&bondingCurveLayout{Discriminator: GlobalDiscriminator})
	require.NoError(t, err)
	_, err = DecodeBondingCurveAccount(data)
	assert.ErrorContains(t, err, "discriminator")
}

func TestDecodeGlobalAccount(t *testing.T) {
	authority := solana.NewWallet().PublicKey()
	data, err := bin.MarshalBorsh(&globalLayout{
		Discriminator:               GlobalDiscriminator,
		Initialized:                 true,
		Authority:                   authority,
		FeeRecipient:                solana.SystemProgramID,
		InitialVirtualTokenReserves: DefaultVirtualQuoteReserves,
		InitialVirtualSolReserves:   DefaultVirtualBaseReserves,
		InitialRealTokenReserves:    793_100_000_000_000,
		TokenTotalSupply:            DefaultTotalSupply,
		FeeBasisPoints:              uint64(DefaultFeeBps),
	})
	require.NoError(t, err)

	account, err := DecodeGlobalAccount(data)
	require.NoError(t, err)

	assert.True(t, account.Initialized)
	assert.Equal(t, authority, account.Authority)
	assert.Equal(t, PumpFunDefaultCurve(), account.Curve)
	assert.Equal(t, DefaultFeeBps, account.FeeBps)
}

func TestDecodeGlobalAccountRejectsFee(t *testing.T) {
	data, err := bin.MarshalBorsh(&globalLayout{
		Discriminator:    GlobalDiscriminator,
		TokenTotalSupply: DefaultTotalSupply,
		FeeBasisPoints:   BasisPoints + 1,
	})
	require.NoError(t, err)

	_, err = DecodeGlobalAccount(data)
	assert.ErrorIs(t, err, ErrInvalidFee)
}
