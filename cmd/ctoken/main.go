// ctoken drives confidential token accounts against a ctledgerd ledger.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ctoken/internal/address"
	"ctoken/internal/config"
	"ctoken/internal/confidential"
	"ctoken/internal/journal"
	"ctoken/internal/ledger/httpapi"
	"ctoken/internal/logging"
	"ctoken/internal/proof"
	"ctoken/internal/proofctx"
	"ctoken/internal/signer"
	"ctoken/internal/token"
)

var (
	configPath string
	ownerKey   string
	payerKey   string
)

// env is built once per invocation from the config file.
type env struct {
	cfg     *config.Config
	logger  *zap.Logger
	closers []io.Closer
	client  *httpapi.Client
	journal *journal.Journal
	ranges  *proof.Groth16Range
	svc     *confidential.Service
}

var cur *env

var rootCmd = &cobra.Command{
	Use:           "ctoken",
	Short:         "Confidential token account client",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		cur, err = setup()
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "ctoken.yaml", "config file, created with defaults when missing")
	rootCmd.PersistentFlags().StringVar(&ownerKey, "owner", "owner", "owner key name under keysDir, or a key file path")
	rootCmd.PersistentFlags().StringVar(&payerKey, "payer", "", "fee payer key, defaults to the owner")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if cur != nil {
		cur.close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func setup() (*env, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger, closer, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, logger: logger, closers: []io.Closer{closer}}

	url, err := cfg.LedgerURL()
	if err != nil {
		e.close()
		return nil, err
	}
	e.client = httpapi.NewClient(url, httpapi.WithHTTPClient(&http.Client{Timeout: cfg.SubmitTimeout}))
	return e, nil
}

// service opens the journal and builds the account service on first use.
func (e *env) service() (*confidential.Service, error) {
	if e.svc != nil {
		return e.svc, nil
	}
	j, err := journal.Open(e.cfg.JournalPath, e.logger)
	if err != nil {
		return nil, err
	}
	e.journal = j
	e.closers = append(e.closers, j)

	ctxs := proofctx.NewManager(e.client, e.logger,
		proofctx.WithJournal(j),
		proofctx.WithSettleTimeout(e.cfg.SubmitTimeout),
		proofctx.WithRecoverConcurrency(e.cfg.RecoverConcurrency),
	)
	e.ranges = proof.NewGroth16Range(e.cfg.CircuitDir, e.logger)
	gen := proof.NewProver(e.ranges)
	e.svc = confidential.NewService(e.client, gen, ctxs, e.logger)
	return e.svc, nil
}

// provingService is service for commands that submit range proofs. It refuses
// to run when the ledger verifies against different circuit keys, which
// happens when the two sides do not share circuitDir.
func (e *env) provingService(ctx context.Context) (*confidential.Service, error) {
	svc, err := e.service()
	if err != nil {
		return nil, err
	}
	remote, err := e.client.Circuits(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch ledger circuit keys")
	}
	local, err := e.ranges.Fingerprints()
	if err != nil {
		return nil, errors.Wrap(err, "range circuits")
	}
	if err := proof.MatchFingerprints(local, remote); err != nil {
		return nil, errors.Wrapf(err, "local circuitDir %s", e.cfg.CircuitDir)
	}
	return svc, nil
}

func (e *env) close() {
	_ = e.logger.Sync()
	for i := len(e.closers) - 1; i >= 0; i-- {
		_ = e.closers[i].Close()
	}
}

func (e *env) keyPath(name string) string {
	if strings.ContainsRune(name, filepath.Separator) || strings.HasSuffix(name, ".key") {
		return name
	}
	return filepath.Join(e.cfg.KeysDir, name+".key")
}

func (e *env) key(name string) (*signer.Ed448, error) {
	s, err := signer.LoadEd448(e.keyPath(name))
	if err != nil {
		return nil, errors.Wrapf(err, "key %q (create it with ctoken keygen)", name)
	}
	return s, nil
}

func (e *env) owner() (*signer.Ed448, error) {
	return e.key(ownerKey)
}

func (e *env) payer() (signer.Signer, error) {
	if payerKey == "" {
		return e.owner()
	}
	return e.key(payerKey)
}

// resolve accepts a base58 address or the name of a local key.
func (e *env) resolve(s string) (address.Address, error) {
	if a, err := address.Parse(s); err == nil {
		return a, nil
	}
	k, err := e.key(s)
	if err != nil {
		return address.Zero, errors.Errorf("%q is neither an address nor a local key", s)
	}
	return k.Address(), nil
}

func (e *env) decimals(ctx context.Context, mint address.Address) (uint8, error) {
	raw, err := e.client.AccountState(ctx, mint)
	if err != nil {
		return 0, errors.Wrapf(err, "mint %s", mint)
	}
	m, err := token.DecodeMint(raw.Data)
	if err != nil {
		return 0, errors.Wrapf(err, "mint %s", mint)
	}
	return m.Decimals, nil
}

// amount parses a UI amount against the mint's decimals.
func (e *env) amount(ctx context.Context, mint address.Address, ui string) (uint64, uint8, error) {
	decimals, err := e.decimals(ctx, mint)
	if err != nil {
		return 0, 0, err
	}
	v, err := token.ToBaseUnits(ui, decimals)
	return v, decimals, err
}

func printContexts(w io.Writer, r *confidential.ContextResult) {
	fmt.Fprintf(w, "Operation: %s\n", r.OperationID)
	if r.Receipt != nil {
		fmt.Fprintf(w, "Transaction: %s (slot %d)\n", r.Receipt.ID, r.Receipt.Slot)
	}
	for _, c := range r.Contexts {
		fmt.Fprintf(w, "  %-20s %s %s\n", c.Kind, c.Address, c.Status)
	}
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "Warning: %v (run ctoken recover)\n", warn)
	}
}
