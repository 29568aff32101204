package domain

import "context"

// Attestation is an externally produced, cryptographically checkable
// statement of a boolean outcome. The engine treats it as opaque: it is
// accepted or rejected as a unit by an OracleGateway.
type Attestation struct {
	ProposalID int64 `json:"proposal_id"`
	Outcome    bool  `json:"outcome"`
	// Data is the ABI-encoded attestation response from the data layer.
	Data []byte `json:"data"`
	// MerkleProof is the sibling-hash path from the data leaf to the signed
	// round root.
	MerkleProof [][]byte `json:"merkle_proof"`
	// Signature is the 65-byte recoverable signature over the round root.
	Signature []byte `json:"signature"`
}

// OracleGateway verifies attestations. Verify returns nil when the
// attestation is acceptable and ErrInvalidProof (possibly wrapped) otherwise.
// The engine never mutates state on a rejected attestation.
type OracleGateway interface {
	Verify(ctx context.Context, att Attestation) error
}

// Proof returns the opaque bytes retained on the proposal for audit: the
// attestation data followed by the signature.
func (a Attestation) Proof() []byte {
	buf := make([]byte, 0, len(a.Data)+len(a.Signature))
	buf = append(buf, a.Data...)
	buf = append(buf, a.Signature...)
	return buf
}
