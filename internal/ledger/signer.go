package ledger

import (
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/pumpcurve/internal/curve"
)

var (
	ErrInvalidSignature = errors.New("invalid trade signature")
	ErrReplayedTrade    = errors.New("trade already submitted")
)

// TradeIntent is the payload a trader signs. MinOutput is the bound the
// ledger enforces against its own state.
type TradeIntent struct {
	TokenID     string
	Direction   curve.Direction
	InputAmount uint64
	MinOutput   uint64
	Nonce       uint64
}

// Encode returns the borsh encoding the signature covers.
func (i TradeIntent) Encode() ([]byte, error) {
	data, err := bin.MarshalBorsh(&i)
	if err != nil {
		return nil, fmt.Errorf("failed to encode trade intent: %w", err)
	}
	return data, nil
}

// SignedTrade is an intent together with the trader's signature.
type SignedTrade struct {
	Intent    TradeIntent
	Trader    solana.PublicKey
	Signature solana.Signature
}

// Verify checks the signature over the encoded intent.
func (t SignedTrade) Verify() error {
	payload, err := t.Intent.Encode()
	if err != nil {
		return err
	}
	if !t.Signature.Verify(t.Trader, payload) {
		return fmt.Errorf("%w: trader %s", ErrInvalidSignature, t.Trader)
	}
	return nil
}

// Signer produces signed trades. Implementations are opaque to the engine.
type Signer interface {
	PublicKey() solana.PublicKey
	Sign(intent TradeIntent) (SignedTrade, error)
}

// KeypairSigner signs with an in-memory ed25519 key.
type KeypairSigner struct {
	key solana.PrivateKey
}

func NewKeypairSigner(key solana.PrivateKey) *KeypairSigner {
	return &KeypairSigner{key: key}
}

// NewRandomSigner generates a throwaway keypair.
func NewRandomSigner() (*KeypairSigner, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %w", err)
	}
	return &KeypairSigner{key: key}, nil
}

func (s *KeypairSigner) PublicKey() solana.PublicKey {
	return s.key.PublicKey()
}

func (s *KeypairSigner) Sign(intent TradeIntent) (SignedTrade, error) {
	payload, err := intent.Encode()
	if err != nil {
		return SignedTrade{}, err
	}
	sig, err := s.key.Sign(payload)
	if err != nil {
		return SignedTrade{}, fmt.Errorf("failed to sign trade intent: %w", err)
	}
	return SignedTrade{Intent: intent, Trader: s.key.PublicKey(), Signature: sig}, nil
}
