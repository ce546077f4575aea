// Package config loads the yaml configuration shared by ctoken and ctledgerd.
package config

import (
	"net"
	"os"
	"path/filepath"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	mn "github.com/multiformats/go-multiaddr/net"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

type LogConfig struct {
	Level string `yaml:"level"`
	// File enables a rotating log file.
	File string `yaml:"file"`
	// AuditFile receives every record at WARN or above.
	AuditFile string `yaml:"auditFile"`
}

type LedgerConfig struct {
	// StorePath holds the localnet pebble store. Empty keeps it in memory.
	StorePath   string  `yaml:"storePath"`
	AnchorTTL   uint64  `yaml:"anchorTTL"`
	RentBase    uint64  `yaml:"rentBase"`
	RentPerByte uint64  `yaml:"rentPerByte"`
	RateLimit   float64 `yaml:"rateLimit"`
	RateBurst   int     `yaml:"rateBurst"`
}

type Config struct {
	// LedgerMultiaddr is where the client reaches ctledgerd.
	LedgerMultiaddr string `yaml:"ledgerMultiaddr"`
	// ListenMultiaddr is where ctledgerd serves.
	ListenMultiaddr string `yaml:"listenMultiaddr"`

	KeysDir     string `yaml:"keysDir"`
	// CircuitDir caches the Groth16 range keys. ctoken and ctledgerd must
	// point at the same directory: a missing key pair triggers a fresh setup,
	// and proofs made with one setup never verify under another. ctoken
	// compares fingerprints with the ledger's /v1/circuits before proving.
	CircuitDir  string `yaml:"circuitDir"`
	JournalPath string `yaml:"journalPath"`

	MaxPendingCounter  uint64        `yaml:"maxPendingCounter"`
	SubmitTimeout      time.Duration `yaml:"submitTimeout"`
	RecoverConcurrency int           `yaml:"recoverConcurrency"`

	Ledger LedgerConfig `yaml:"ledger"`
	Log    LogConfig    `yaml:"log"`
}

func DefaultConfig() *Config {
	return &Config{
		LedgerMultiaddr:    "/ip4/127.0.0.1/tcp/8899",
		ListenMultiaddr:    "/ip4/127.0.0.1/tcp/8899",
		KeysDir:            "keys",
		CircuitDir:         "circuits",
		JournalPath:        "journal",
		MaxPendingCounter:  65536,
		SubmitTimeout:      30 * time.Second,
		RecoverConcurrency: 4,
		Ledger: LedgerConfig{
			StorePath:   "ledger",
			AnchorTTL:   150,
			RentBase:    890_880,
			RentPerByte: 6_960,
			RateLimit:   50,
			RateBurst:   100,
		},
		Log: LogConfig{
			Level:     "info",
			AuditFile: "audit.log",
		},
	}
}

// LoadConfig reads path, writing the defaults there when it does not exist.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg := DefaultConfig()
		if err := SaveConfig(cfg, path); err != nil {
			return nil, errors.Wrap(err, "save default config")
		}
		return cfg, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	return cfg, cfg.Validate()
}

func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create config directory")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	return errors.Wrap(os.WriteFile(path, data, 0o644), "write config")
}

func (c *Config) Validate() error {
	if _, err := ma.NewMultiaddr(c.LedgerMultiaddr); err != nil {
		return errors.Wrap(err, "ledgerMultiaddr")
	}
	if _, err := ma.NewMultiaddr(c.ListenMultiaddr); err != nil {
		return errors.Wrap(err, "listenMultiaddr")
	}
	switch {
	case c.MaxPendingCounter == 0:
		return errors.New("maxPendingCounter must be positive")
	case c.SubmitTimeout <= 0:
		return errors.New("submitTimeout must be positive")
	case c.RecoverConcurrency <= 0:
		return errors.New("recoverConcurrency must be positive")
	case c.Ledger.AnchorTTL == 0:
		return errors.New("ledger.anchorTTL must be positive")
	case c.Ledger.RateLimit <= 0 || c.Ledger.RateBurst <= 0:
		return errors.New("ledger rate limit must be positive")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}

// ListenAddr returns the parsed listen multiaddr.
func (c *Config) ListenAddr() (ma.Multiaddr, error) {
	addr, err := ma.NewMultiaddr(c.ListenMultiaddr)
	return addr, errors.Wrap(err, "listenMultiaddr")
}

// LedgerURL turns the ledger multiaddr into an http base URL.
func (c *Config) LedgerURL() (string, error) {
	addr, err := ma.NewMultiaddr(c.LedgerMultiaddr)
	if err != nil {
		return "", errors.Wrap(err, "ledgerMultiaddr")
	}
	netAddr, err := mn.ToNetAddr(addr)
	if err != nil {
		return "", errors.Wrap(err, "ledgerMultiaddr")
	}
	tcp, ok := netAddr.(*net.TCPAddr)
	if !ok {
		return "", errors.Errorf("ledgerMultiaddr %s is not tcp", c.LedgerMultiaddr)
	}
	return "http://" + tcp.String(), nil
}
