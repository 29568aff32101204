package oracle

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/helixlabs/helixmarket/internal/domain"
)

// StaticGateway accepts any structurally well-formed attestation without
// checking signatures. It exists for tests and the local simulation mode;
// never wire it in front of real funds.
type StaticGateway struct{}

// Verify implements domain.OracleGateway.
func (StaticGateway) Verify(_ context.Context, att domain.Attestation) error {
	return checkShape(att)
}

// Signer produces attestations a FlareVerifier will accept. Used by the
// simulation driver and the verifier tests.
type Signer struct {
	key *ecdsa.PrivateKey
}

// NewSigner wraps an attestation signing key.
func NewSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{key: key}
}

// Address returns the signer's address in hex, suitable for FlareVerifier
// configuration.
func (s *Signer) Address() string {
	return ethcrypto.PubkeyToAddress(s.key.PublicKey).Hex()
}

// Attest builds a signed attestation for the given proposal and outcome.
// The data payload is the outcome's ABI word; the merkle proof is empty, so
// the signed root is the keccak leaf itself.
func (s *Signer) Attest(proposalID int64, outcome bool) (domain.Attestation, error) {
	data := EncodeOutcome(outcome)
	root := ethcrypto.Keccak256(data)

	sig, err := ethcrypto.Sign(root, s.key)
	if err != nil {
		return domain.Attestation{}, fmt.Errorf("oracle: sign attestation: %w", err)
	}
	return domain.Attestation{
		ProposalID: proposalID,
		Outcome:    outcome,
		Data:       data,
		Signature:  sig,
	}, nil
}
