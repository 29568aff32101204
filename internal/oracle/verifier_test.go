package oracle

import (
	"context"
	"crypto/rand"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixlabs/helixmarket/internal/domain"
)

func TestSignerVerifierRoundTrip(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	signer := NewSigner(key)

	verifier, err := NewFlareVerifier(signer.Address())
	require.NoError(t, err)

	for _, outcome := range []bool{true, false} {
		att, err := signer.Attest(42, outcome)
		require.NoError(t, err)
		assert.NoError(t, verifier.Verify(context.Background(), att))
	}
}

func TestVerifyRejectsUntrustedSigner(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	other, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	verifier, err := NewFlareVerifier(NewSigner(other).Address())
	require.NoError(t, err)

	att, err := NewSigner(key).Attest(1, true)
	require.NoError(t, err)
	assert.ErrorIs(t, verifier.Verify(context.Background(), att), domain.ErrInvalidProof)
}

func TestVerifyRejectsTamperedAttestation(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	signer := NewSigner(key)
	verifier, err := NewFlareVerifier(signer.Address())
	require.NoError(t, err)
	ctx := context.Background()

	att, err := signer.Attest(1, true)
	require.NoError(t, err)

	// Flipping the claimed outcome disagrees with the signed data.
	flipped := att
	flipped.Outcome = false
	assert.ErrorIs(t, verifier.Verify(ctx, flipped), domain.ErrInvalidProof)

	// Changing the data breaks the signature over the root.
	altered := att
	altered.Data = EncodeOutcome(false)
	altered.Outcome = false
	assert.ErrorIs(t, verifier.Verify(ctx, altered), domain.ErrInvalidProof)

	// A truncated signature never recovers.
	short := att
	short.Signature = att.Signature[:64]
	assert.ErrorIs(t, verifier.Verify(ctx, short), domain.ErrInvalidProof)
}

func TestVerifyWithMerkleProof(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	verifier, err := NewFlareVerifier(NewSigner(key).Address())
	require.NoError(t, err)

	data := EncodeOutcome(true)
	sibling := make([]byte, 32)
	_, err = rand.Read(sibling)
	require.NoError(t, err)

	root := FoldProof(ethcrypto.Keccak256(data), [][]byte{sibling})
	sig, err := ethcrypto.Sign(root, key)
	require.NoError(t, err)

	att := domain.Attestation{
		ProposalID:  7,
		Outcome:     true,
		Data:        data,
		MerkleProof: [][]byte{sibling},
		Signature:   sig,
	}
	assert.NoError(t, verifier.Verify(context.Background(), att))

	// Dropping the proof changes the root the signature covers.
	att.MerkleProof = nil
	assert.ErrorIs(t, verifier.Verify(context.Background(), att), domain.ErrInvalidProof)
}

func TestFoldProofSortedPairs(t *testing.T) {
	lo := make([]byte, 32)
	hi := make([]byte, 32)
	hi[0] = 0xff

	// The pair hashes in sorted order regardless of which side is the node.
	assert.Equal(t, FoldProof(lo, [][]byte{hi}), FoldProof(hi, [][]byte{lo}))
}

func TestCheckShape(t *testing.T) {
	tests := []struct {
		name    string
		att     domain.Attestation
		wantErr bool
	}{
		{"valid true", domain.Attestation{Outcome: true, Data: EncodeOutcome(true)}, false},
		{"valid false", domain.Attestation{Outcome: false, Data: EncodeOutcome(false)}, false},
		{"data too short", domain.Attestation{Outcome: true, Data: []byte{1}}, true},
		{"outcome mismatch", domain.Attestation{Outcome: false, Data: EncodeOutcome(true)}, true},
		{"garbage outcome word", domain.Attestation{Outcome: true, Data: append(make([]byte, 31), 2)}, true},
		{"bad proof node width", domain.Attestation{Outcome: true, Data: EncodeOutcome(true), MerkleProof: [][]byte{{1, 2}}}, true},
	}

	gateway := StaticGateway{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gateway.Verify(context.Background(), tt.att)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidProof)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewFlareVerifierRejectsBadAddress(t *testing.T) {
	_, err := NewFlareVerifier("not-an-address")
	assert.Error(t, err)
}
