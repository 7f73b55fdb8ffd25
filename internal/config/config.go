// Package config parses the CLI surface into an immutable Config and
// resolves the pool address, proxy and TLS settings the network
// supervisor needs at connect time.
package config

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"os"
	"runtime"
	"time"

	"github.com/jessevdk/go-flags"
)

// Currency selects the stratum dialect and proof-of-work engine.
type Currency string

const (
	CurrencyETH Currency = "eth"
	CurrencyCKB Currency = "ckb"
	CurrencyBTC Currency = "btc"
	CurrencyKAS Currency = "kas"
)

func (c Currency) valid() bool {
	switch c {
	case CurrencyETH, CurrencyCKB, CurrencyBTC, CurrencyKAS:
		return true
	}
	return false
}

// TimeoutSecs bounds the network supervisor's dial, TLS handshake, proxy
// CONNECT and line writes; line reads wait up to 90 seconds instead.
const TimeoutSecs = 3

// Timeout returns the fixed per-operation network timeout.
func Timeout() time.Duration {
	return TimeoutSecs * time.Second
}

// Config is parsed once at startup from CLI flags and never mutated
// afterward; handlers and the network supervisor hold read-only copies.
type Config struct {
	Pool     string   `short:"p" long:"pool" description:"The address of the pool: host:port" required:"true"`
	Workers  int      `short:"w" long:"workers" default:"128" description:"Worker count, capped at NumCPU if larger"`
	Currency Currency `short:"c" long:"currency" default:"ckb" description:"Currency: eth, ckb, btc or kas"`
	Testnet  bool     `short:"t" long:"testnet" description:"Enable testnet quirks (etchash ecip-1099, kas notify variant); ckb hashing is unchanged"`
	User     string   `short:"u" long:"user" default:"user" description:"Account/user name"`
	Rig      string   `short:"r" long:"rig" default:"rig" description:"Worker/rig name"`
	Verbose  []bool   `short:"v" long:"verbose" description:"Increase log verbosity: -v Info, -vv Debug, -vvv+ Trace"`
	Expire   uint64   `short:"e" long:"expire" default:"100" description:"Reconnect if the current job hasn't changed for this many seconds"`
	Sleep    uint64   `short:"s" long:"sleep" default:"0" description:"Seconds a worker sleeps after submitting a solution"`
	Domain   *string  `short:"d" long:"domain" description:"Domain name to enable TLS; an empty domain skips certificate verification"`

	// resolved at Finalize() time, not parsed from flags directly
	poolAddr string
}

// Parse parses os.Args (excluding argv[0]) into a Config and resolves
// derived fields.
func Parse() (*Config, error) {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		return nil, err
	}
	if !cfg.Currency.valid() {
		return nil, fmt.Errorf("unknown currency %q", cfg.Currency)
	}
	if err := cfg.resolvePool(); err != nil {
		return nil, err
	}
	cfg.fixWorkers()
	return &cfg, nil
}

func (c *Config) resolvePool() error {
	if _, _, err := net.SplitHostPort(c.Pool); err != nil {
		return fmt.Errorf("pool address %q is not host:port: %w", c.Pool, err)
	}
	c.poolAddr = c.Pool
	return nil
}

// fixWorkers caps Workers at GOMAXPROCS/NumCPU the way the original
// client resets an over-large -w value instead of erroring on it.
func (c *Config) fixWorkers() {
	if n := runtime.NumCPU(); c.Workers > n {
		c.Workers = n
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
}

// PoolAddr is the dialable host:port for the pool connection.
func (c *Config) PoolAddr() string {
	return c.poolAddr
}

// LogLevel maps the -v counter to a verbosity tier.
func (c *Config) LogLevel() uint8 {
	n := len(c.Verbose)
	if n > 3 {
		n = 3
	}
	return uint8(n)
}

// TLSConfig mirrors the original client's domain-driven TLS bootstrap:
// nil Domain disables TLS entirely; an empty Domain enables TLS but skips
// certificate verification (substituting "localhost" as the SNI name,
// since the TLS stack rejects an empty server name outright).
func (c *Config) TLSConfig() (*tls.Config, bool) {
	if c.Domain == nil {
		return nil, false
	}
	d := *c.Domain
	if d == "" {
		return &tls.Config{
			InsecureSkipVerify: true,
			ServerName:         "localhost",
		}, true
	}
	return &tls.Config{ServerName: d}, true
}

// ProxyURL resolves the HTTP(S) CONNECT proxy from the environment,
// matching the original client's reliance on http_proxy/https_proxy
// rather than a dedicated flag.
func (c *Config) ProxyURL() (*url.URL, error) {
	names := []string{"http_proxy", "HTTP_PROXY"}
	if _, ok := c.TLSConfig(); ok {
		names = []string{"https_proxy", "HTTPS_PROXY"}
	}
	for _, name := range names {
		if raw := os.Getenv(name); raw != "" {
			return url.Parse(raw)
		}
	}
	return nil, nil
}
