package proof_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ctoken/internal/elgamal"
	"ctoken/internal/proof"
	"ctoken/internal/proof/prooftest"
)

func keypair(t *testing.T) *elgamal.Keypair {
	t.Helper()
	kp, err := elgamal.NewKeypair()
	require.NoError(t, err)
	return kp
}

func TestPubkeyValidity(t *testing.T) {
	kp := keypair(t)
	p, err := proof.ProvePubkeyValidity(kp)
	require.NoError(t, err)
	require.NoError(t, p.Verify())

	p.Pubkey = keypair(t).Public
	assert.ErrorIs(t, p.Verify(), proof.ErrInvalidProof)
}

func TestEqualityProof(t *testing.T) {
	kp := keypair(t)
	ct, _, err := elgamal.Encrypt(kp.Public, 900)
	require.NoError(t, err)
	r, err := elgamal.NewOpening()
	require.NoError(t, err)

	t.Run("valid", func(t *testing.T) {
		p, err := proof.ProveEquality(kp, ct, 900, r)
		require.NoError(t, err)
		require.NoError(t, p.Verify())
	})
	t.Run("wrong value", func(t *testing.T) {
		p, err := proof.ProveEquality(kp, ct, 901, r)
		require.NoError(t, err)
		assert.ErrorIs(t, p.Verify(), proof.ErrInvalidProof)
	})
	t.Run("swapped ciphertext", func(t *testing.T) {
		p, err := proof.ProveEquality(kp, ct, 900, r)
		require.NoError(t, err)
		p.Ciphertext = ct.AddAmount(1)
		assert.ErrorIs(t, p.Verify(), proof.ErrInvalidProof)
	})
	t.Run("zero handle", func(t *testing.T) {
		plain := elgamal.ZeroCiphertext().AddAmount(40)
		p, err := proof.ProveEquality(kp, plain, 40, r)
		require.NoError(t, err)
		require.NoError(t, p.Verify())
	})
}

func TestValidityProof(t *testing.T) {
	src, dst := keypair(t), keypair(t)
	lo, loR, err := elgamal.EncryptGrouped(src.Public, dst.Public, 7)
	require.NoError(t, err)
	hi, hiR, err := elgamal.EncryptGrouped(src.Public, dst.Public, 3)
	require.NoError(t, err)

	p, err := proof.ProveValidity(src.Public, dst.Public, lo, hi, 7, 3, loR, hiR)
	require.NoError(t, err)
	require.NoError(t, p.Verify())

	p.Pubkeys[1] = keypair(t).Public
	assert.ErrorIs(t, p.Verify(), proof.ErrInvalidProof)
}

func TestSplitAmount(t *testing.T) {
	lo, hi, err := proof.SplitAmount(0x0123_4567_89ab)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x89ab), lo)
	assert.Equal(t, uint64(0x0123_4567), hi)

	_, _, err = proof.SplitAmount(proof.MaxAmount)
	assert.Error(t, err)
}

func TestWithdrawBundle(t *testing.T) {
	kp := keypair(t)
	available := elgamal.ZeroCiphertext().AddAmount(100)
	prover := proof.NewProver(prooftest.OpenRange{})
	verifier := proof.NewVerifier(prooftest.OpenRange{})

	b, err := prover.Withdraw(proof.WithdrawRequest{Keypair: kp, Available: available, Balance: 100, Amount: 30})
	require.NoError(t, err)
	assert.Equal(t, []proof.Kind{proof.KindEquality, proof.KindRange}, b.Kinds())
	for _, k := range b.Kinds() {
		require.NoError(t, verifier.Verify(k, b[k]), k.String())
	}

	eq, err := proof.DecodeEquality(b[proof.KindEquality])
	require.NoError(t, err)
	assert.True(t, eq.Ciphertext.Equal(available.SubAmount(30)))
	got, err := kp.Secret.Decrypt(eq.Ciphertext)
	require.NoError(t, err)
	assert.Equal(t, uint64(70), got)

	rp, err := proof.DecodeRange(b[proof.KindRange])
	require.NoError(t, err)
	require.Len(t, rp.Commitments, 1)
	assert.True(t, rp.Commitments[0].Equal(eq.Commitment))

	_, err = prover.Withdraw(proof.WithdrawRequest{Keypair: kp, Available: available, Balance: 100, Amount: 150})
	assert.ErrorIs(t, err, proof.ErrProofGeneration)
}

func TestTransferBundle(t *testing.T) {
	src, dst := keypair(t), keypair(t)
	available := elgamal.ZeroCiphertext().AddAmount(1 << 20)
	prover := proof.NewProver(prooftest.OpenRange{})
	verifier := proof.NewVerifier(prooftest.OpenRange{})

	amount := uint64(70_000)
	b, err := prover.Transfer(proof.TransferRequest{
		Keypair: src, Recipient: dst.Public, Available: available, Balance: 1 << 20, Amount: amount,
	})
	require.NoError(t, err)
	require.Len(t, b, 3)
	for _, k := range b.Kinds() {
		require.NoError(t, verifier.Verify(k, b[k]), k.String())
	}

	v, err := proof.DecodeValidity(b[proof.KindCiphertextValidity])
	require.NoError(t, err)
	credit := elgamal.CombineLoHi(v.Lo.Ciphertext(elgamal.DestinationHandle), v.Hi.Ciphertext(elgamal.DestinationHandle), proof.LoBits)
	got, err := dst.Secret.Decrypt(credit)
	require.NoError(t, err)
	assert.Equal(t, amount, got)

	eq, err := proof.DecodeEquality(b[proof.KindEquality])
	require.NoError(t, err)
	rest, err := src.Secret.Decrypt(eq.Ciphertext)
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<20)-amount, rest)
}

func TestVerifierRejectsGarbage(t *testing.T) {
	v := proof.NewVerifier(prooftest.OpenRange{})
	assert.ErrorIs(t, v.Verify(proof.KindEquality, []byte{0x01}), proof.ErrInvalidProof)
	assert.ErrorIs(t, v.Verify(proof.Kind(9), nil), proof.ErrInvalidProof)
}

func TestGroth16Range(t *testing.T) {
	if os.Getenv("CTOKEN_GROTH16") != "1" {
		t.Skip("set CTOKEN_GROTH16=1 to run the Groth16 setup")
	}
	g := proof.NewGroth16Range(t.TempDir(), zap.NewNop())

	r, err := elgamal.NewOpening()
	require.NoError(t, err)
	rp, err := g.ProveRange(proof.WithdrawRange, []proof.RangeOpening{{Value: 0, Opening: r}})
	require.NoError(t, err)
	require.NoError(t, g.VerifyRange(rp))

	rp.Commitments[0] = elgamal.Commit(1, r)
	assert.ErrorIs(t, g.VerifyRange(rp), proof.ErrInvalidProof)

	_, err = g.ProveRange(proof.TransferRange, []proof.RangeOpening{
		{Value: 5, Opening: r}, {Value: 1 << 16, Opening: r}, {Value: 0, Opening: r},
	})
	assert.ErrorIs(t, err, proof.ErrProofGeneration)
}
