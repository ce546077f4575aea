package proof

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"ctoken/internal/elgamal"
	"ctoken/internal/metrics"
)

// WithdrawRequest is the input of a withdraw proof bundle.
type WithdrawRequest struct {
	Keypair   *elgamal.Keypair
	Available elgamal.Ciphertext
	Balance   uint64
	Amount    uint64
}

// TransferRequest is the input of a transfer proof bundle.
type TransferRequest struct {
	Keypair   *elgamal.Keypair
	Recipient elgamal.PublicKey
	Available elgamal.Ciphertext
	Balance   uint64
	Amount    uint64
}

// Generator builds proofs for account operations.
type Generator interface {
	PubkeyValidity(kp *elgamal.Keypair) (*PubkeyValidityProof, error)
	Withdraw(req WithdrawRequest) (Bundle, error)
	Transfer(req TransferRequest) (Bundle, error)
}

// Prover is the Generator backed by the sigma protocols and a RangeProver.
type Prover struct {
	Range RangeProver
}

var _ Generator = (*Prover)(nil)

func NewProver(rp RangeProver) *Prover {
	return &Prover{Range: rp}
}

func (p *Prover) PubkeyValidity(kp *elgamal.Keypair) (*PubkeyValidityProof, error) {
	if kp == nil {
		return nil, errors.Wrap(ErrProofGeneration, "nil keypair")
	}
	return ProvePubkeyValidity(kp)
}

// Withdraw proves the available ciphertext minus Amount encrypts a
// non-negative 64-bit balance.
func (p *Prover) Withdraw(req WithdrawRequest) (Bundle, error) {
	defer prometheus.NewTimer(metrics.ProofGeneration.WithLabelValues("withdraw")).ObserveDuration()
	if req.Keypair == nil {
		return nil, errors.Wrap(ErrProofGeneration, "nil keypair")
	}
	if req.Amount > req.Balance {
		return nil, errors.Wrapf(ErrProofGeneration, "amount %d exceeds balance %d", req.Amount, req.Balance)
	}
	remaining := req.Balance - req.Amount
	newAvailable := req.Available.SubAmount(req.Amount)

	r, err := elgamal.NewOpening()
	if err != nil {
		return nil, errors.Wrap(ErrProofGeneration, err.Error())
	}
	eq, err := ProveEquality(req.Keypair, newAvailable, remaining, r)
	if err != nil {
		return nil, err
	}
	rp, err := p.Range.ProveRange(WithdrawRange, []RangeOpening{{Value: remaining, Opening: r}})
	if err != nil {
		return nil, wrapGeneration(err)
	}
	return buildBundle(map[Kind]any{KindEquality: eq, KindRange: rp})
}

// Transfer proves the debit of the source and the well-formedness of the
// amount encrypted for both parties.
func (p *Prover) Transfer(req TransferRequest) (Bundle, error) {
	defer prometheus.NewTimer(metrics.ProofGeneration.WithLabelValues("transfer")).ObserveDuration()
	if req.Keypair == nil {
		return nil, errors.Wrap(ErrProofGeneration, "nil keypair")
	}
	if req.Amount > req.Balance {
		return nil, errors.Wrapf(ErrProofGeneration, "amount %d exceeds balance %d", req.Amount, req.Balance)
	}
	lo, hi, err := SplitAmount(req.Amount)
	if err != nil {
		return nil, errors.Wrap(ErrProofGeneration, err.Error())
	}
	loCt, loR, err := elgamal.EncryptGrouped(req.Keypair.Public, req.Recipient, lo)
	if err != nil {
		return nil, errors.Wrap(ErrProofGeneration, err.Error())
	}
	hiCt, hiR, err := elgamal.EncryptGrouped(req.Keypair.Public, req.Recipient, hi)
	if err != nil {
		return nil, errors.Wrap(ErrProofGeneration, err.Error())
	}

	remaining := req.Balance - req.Amount
	debit := elgamal.CombineLoHi(loCt.Ciphertext(elgamal.SourceHandle), hiCt.Ciphertext(elgamal.SourceHandle), LoBits)
	newAvailable := req.Available.Sub(debit)

	r, err := elgamal.NewOpening()
	if err != nil {
		return nil, errors.Wrap(ErrProofGeneration, err.Error())
	}
	eq, err := ProveEquality(req.Keypair, newAvailable, remaining, r)
	if err != nil {
		return nil, err
	}
	validity, err := ProveValidity(req.Keypair.Public, req.Recipient, loCt, hiCt, lo, hi, loR, hiR)
	if err != nil {
		return nil, err
	}
	rp, err := p.Range.ProveRange(TransferRange, []RangeOpening{
		{Value: remaining, Opening: r},
		{Value: lo, Opening: loR},
		{Value: hi, Opening: hiR},
	})
	if err != nil {
		return nil, wrapGeneration(err)
	}
	return buildBundle(map[Kind]any{
		KindEquality:           eq,
		KindCiphertextValidity: validity,
		KindRange:              rp,
	})
}

func buildBundle(items map[Kind]any) (Bundle, error) {
	b := make(Bundle, len(items))
	for k, v := range items {
		data, err := encode(v)
		if err != nil {
			return nil, errors.Wrap(ErrProofGeneration, err.Error())
		}
		b[k] = data
	}
	return b, nil
}

func wrapGeneration(err error) error {
	if errors.Is(err, ErrProofGeneration) {
		return err
	}
	return errors.Wrap(ErrProofGeneration, err.Error())
}
