// Package oracle implements the attestation gateways that gate proposal
// resolution: a production verifier performing merkle-proof and signature
// checks in the style of the Flare data connector, and a static gateway for
// tests and local simulation.
package oracle

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/helixlabs/helixmarket/internal/domain"
)

const (
	// hashLen is the size of a keccak256 digest / merkle node.
	hashLen = 32
	// sigLen is the size of a recoverable secp256k1 signature (r||s||v).
	sigLen = 65
)

// FlareVerifier verifies attestations against a known attestation signer:
// the keccak256 leaf of the attestation data is folded through the merkle
// proof to a round root, and the signature over that root must recover to
// the configured signer address.
type FlareVerifier struct {
	signer common.Address
}

// NewFlareVerifier creates a verifier trusting the given hex signer address.
func NewFlareVerifier(signerHex string) (*FlareVerifier, error) {
	if !common.IsHexAddress(signerHex) {
		return nil, fmt.Errorf("oracle: invalid signer address %q", signerHex)
	}
	return &FlareVerifier{signer: common.HexToAddress(signerHex)}, nil
}

// Verify implements domain.OracleGateway.
func (v *FlareVerifier) Verify(_ context.Context, att domain.Attestation) error {
	if err := checkShape(att); err != nil {
		return err
	}
	if len(att.Signature) != sigLen {
		return fmt.Errorf("oracle: signature length %d: %w", len(att.Signature), domain.ErrInvalidProof)
	}

	root := FoldProof(ethcrypto.Keccak256(att.Data), att.MerkleProof)

	pub, err := ethcrypto.SigToPub(root, att.Signature)
	if err != nil {
		return fmt.Errorf("oracle: recover signer: %w", domain.ErrInvalidProof)
	}
	if ethcrypto.PubkeyToAddress(*pub) != v.signer {
		return fmt.Errorf("oracle: untrusted signer: %w", domain.ErrInvalidProof)
	}
	return nil
}

// FoldProof folds a leaf hash through sibling hashes to the merkle root,
// hashing each pair in sorted order.
func FoldProof(leaf []byte, proof [][]byte) []byte {
	node := leaf
	for _, sibling := range proof {
		if bytes.Compare(node, sibling) <= 0 {
			node = ethcrypto.Keccak256(node, sibling)
		} else {
			node = ethcrypto.Keccak256(sibling, node)
		}
	}
	return node
}

// checkShape rejects structurally malformed attestations: empty data, a
// data payload whose final ABI word does not encode the claimed outcome, or
// proof nodes of the wrong width.
func checkShape(att domain.Attestation) error {
	if len(att.Data) < hashLen {
		return fmt.Errorf("oracle: attestation data too short (%d bytes): %w", len(att.Data), domain.ErrInvalidProof)
	}
	for i, node := range att.MerkleProof {
		if len(node) != hashLen {
			return fmt.Errorf("oracle: merkle node %d has length %d: %w", i, len(node), domain.ErrInvalidProof)
		}
	}

	// The outcome bool is the last ABI-encoded word of the response data;
	// it must agree with the outcome the caller asserts.
	word := att.Data[len(att.Data)-hashLen:]
	var encoded bool
	for i, b := range word {
		if b != 0 {
			if i != hashLen-1 || b != 1 {
				return fmt.Errorf("oracle: malformed outcome word: %w", domain.ErrInvalidProof)
			}
			encoded = true
		}
	}
	if encoded != att.Outcome {
		return fmt.Errorf("oracle: outcome does not match attested data: %w", domain.ErrInvalidProof)
	}
	return nil
}

// EncodeOutcome returns the ABI word for an outcome bool. Shared with the
// static gateway and the test/simulation signers.
func EncodeOutcome(outcome bool) []byte {
	word := make([]byte, hashLen)
	if outcome {
		word[hashLen-1] = 1
	}
	return word
}
