// Package config loads the YAML configuration of the sample binaries and
// turns it into server and host options.
package config

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/caio-sobreiro/dicomassoc/host"
	"github.com/caio-sobreiro/dicomassoc/negotiation"
	"github.com/caio-sobreiro/dicomassoc/pdu"
	"github.com/caio-sobreiro/dicomassoc/server"
	"github.com/caio-sobreiro/dicomassoc/types"
)

// Transfer syntax set names usable in a rule in place of UIDs.
const (
	SetUncompressed = "uncompressed"
	SetStorage      = "storage"
)

// minPDULength is the smallest max_pdu_length accepted from a file.
const minPDULength = 1024

// Config is the file configuration of an application entity.
type Config struct {
	AETitle string `yaml:"ae_title"`
	// Listen is the SCP address; Peer is the SCU's default target.
	Listen string `yaml:"listen"`
	Peer   Peer   `yaml:"peer"`

	StrictAETitle        bool `yaml:"strict_ae_title"`
	RejectWhenNoContexts bool `yaml:"reject_when_no_contexts"`
	MaxAssociations      int  `yaml:"max_associations"`

	MaxPDULength   uint32    `yaml:"max_pdu_length"`
	AsyncOps       *AsyncOps `yaml:"async_ops"`
	WorkerPoolSize int       `yaml:"worker_pool_size"`
	Timeouts       Timeouts  `yaml:"timeouts"`
	// MaxMessageLength bounds one incoming DIMSE message; zero is unlimited.
	MaxMessageLength int `yaml:"max_message_length"`

	// Policy rules are tried in order; none means the built-in policy.
	Policy []Rule `yaml:"policy"`

	LogLevel   string `yaml:"log_level"`
	Capture    string `yaml:"capture"`
	StorageDir string `yaml:"storage_dir"`
}

// Peer is a remote application entity.
type Peer struct {
	AETitle string `yaml:"ae_title"`
	Address string `yaml:"address"`
}

// AsyncOps is the asynchronous operations window to propose or grant.
// Zero means unlimited.
type AsyncOps struct {
	Invoked   uint16 `yaml:"invoked"`
	Performed uint16 `yaml:"performed"`
}

// Timeouts are written as Go durations, e.g. "30s".
type Timeouts struct {
	ARTIM        time.Duration `yaml:"artim"`
	ReleaseGrace time.Duration `yaml:"release_grace"`
	Message      time.Duration `yaml:"message"`
	Connect      time.Duration `yaml:"connect"`
	Read         time.Duration `yaml:"read"`
	Write        time.Duration `yaml:"write"`
}

// Rule accepts an abstract syntax, or a whole category of them, with the
// listed transfer syntaxes. A transfer syntax entry is a UID or one of the
// set names "uncompressed" and "storage".
type Rule struct {
	AbstractSyntax   string   `yaml:"abstract_syntax"`
	Category         string   `yaml:"category"`
	TransferSyntaxes []string `yaml:"transfer_syntaxes"`
}

// Default is the configuration used for anything a file leaves out.
func Default() *Config {
	return &Config{
		AETitle:        "DICOMASSOC",
		Listen:         ":11112",
		Peer:           Peer{AETitle: "ANY-SCP", Address: "127.0.0.1:11112"},
		MaxPDULength:   host.DefaultMaxPDULength,
		WorkerPoolSize: host.DefaultWorkerPoolSize,
		Timeouts: Timeouts{
			ARTIM:        host.DefaultARTIMTimeout,
			ReleaseGrace: host.DefaultReleaseGrace,
			Message:      60 * time.Second,
			Connect:      30 * time.Second,
		},
		LogLevel: "info",
	}
}

// Load reads a YAML file over Default and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	return Parse(data)
}

// Parse decodes YAML over Default and validates the result. Unknown keys
// are errors.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if len(data) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
			return nil, errors.Wrap(err, "parse config")
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "fatal": true}

// Validate checks the configuration for values the engine would refuse.
func (c *Config) Validate() error {
	if err := validateAETitle(c.AETitle); err != nil {
		return errors.Wrap(err, "ae_title")
	}
	if c.Peer.AETitle != "" {
		if err := validateAETitle(c.Peer.AETitle); err != nil {
			return errors.Wrap(err, "peer.ae_title")
		}
	}
	if c.MaxAssociations < 0 {
		return errors.New("max_associations must not be negative")
	}
	if c.MaxPDULength != 0 && c.MaxPDULength < minPDULength {
		return errors.Errorf("max_pdu_length must be 0 or at least %d", minPDULength)
	}
	if c.WorkerPoolSize < 0 {
		return errors.New("worker_pool_size must not be negative")
	}
	if c.MaxMessageLength < 0 {
		return errors.New("max_message_length must not be negative")
	}
	for name, d := range map[string]time.Duration{
		"artim": c.Timeouts.ARTIM, "release_grace": c.Timeouts.ReleaseGrace, "message": c.Timeouts.Message,
		"connect": c.Timeouts.Connect, "read": c.Timeouts.Read, "write": c.Timeouts.Write,
	} {
		if d < 0 {
			return errors.Errorf("timeouts.%s must not be negative", name)
		}
	}
	if !logLevels[c.LogLevel] {
		return errors.Errorf("unknown log_level %q", c.LogLevel)
	}
	for i, r := range c.Policy {
		if _, err := r.compile(); err != nil {
			return errors.Wrapf(err, "policy[%d]", i)
		}
	}
	return nil
}

func validateAETitle(ae string) error {
	if ae == "" {
		return errors.New("must not be empty")
	}
	if len(ae) > pdu.MaxAETitleLength {
		return errors.Errorf("%q is longer than %d characters", ae, pdu.MaxAETitleLength)
	}
	for _, r := range ae {
		if r < 0x20 || r > 0x7E || r == '\\' {
			return errors.Errorf("%q contains invalid characters", ae)
		}
	}
	return nil
}

var categories = map[string]types.Category{
	"verification":   types.CategoryVerification,
	"storage":        types.CategoryStorage,
	"query/retrieve": types.CategoryQueryRetrieve,
	"worklist":       types.CategoryWorklist,
}

func (r Rule) compile() (negotiation.Rule, error) {
	var syntaxes []string
	for _, ts := range r.TransferSyntaxes {
		switch ts {
		case SetUncompressed:
			syntaxes = append(syntaxes, types.UncompressedTransferSyntaxes()...)
		case SetStorage:
			syntaxes = append(syntaxes, types.StorageTransferSyntaxes()...)
		default:
			if !types.IsValidUID(ts) {
				return negotiation.Rule{}, errors.Errorf("invalid transfer syntax %q", ts)
			}
			syntaxes = append(syntaxes, ts)
		}
	}
	if len(syntaxes) == 0 {
		return negotiation.Rule{}, errors.New("no transfer syntaxes")
	}

	switch {
	case r.AbstractSyntax != "" && r.Category != "":
		return negotiation.Rule{}, errors.New("abstract_syntax and category are exclusive")
	case r.AbstractSyntax == "*":
		return negotiation.ForAny(syntaxes...), nil
	case r.AbstractSyntax != "":
		if !types.IsValidUID(r.AbstractSyntax) {
			return negotiation.Rule{}, errors.Errorf("invalid abstract syntax %q", r.AbstractSyntax)
		}
		return negotiation.ForAbstractSyntax(r.AbstractSyntax, syntaxes...), nil
	case r.Category != "":
		category, ok := categories[r.Category]
		if !ok {
			return negotiation.Rule{}, errors.Errorf("unknown category %q", r.Category)
		}
		return negotiation.ForCategory(category, syntaxes...), nil
	default:
		return negotiation.Rule{}, errors.New("abstract_syntax or category is required")
	}
}

// NegotiationPolicy builds the presentation context policy. Without rules
// it is negotiation.DefaultPolicy.
func (c *Config) NegotiationPolicy() (negotiation.Policy, error) {
	if len(c.Policy) == 0 {
		return negotiation.DefaultPolicy(), nil
	}
	rules := make([]negotiation.Rule, 0, len(c.Policy))
	for i, r := range c.Policy {
		rule, err := r.compile()
		if err != nil {
			return nil, errors.Wrapf(err, "policy[%d]", i)
		}
		rules = append(rules, rule)
	}
	return negotiation.NewRulePolicy(rules...), nil
}

// HostOptions are the per-association settings.
func (c *Config) HostOptions() []host.Option {
	opts := []host.Option{
		host.WithMaxPDULength(c.MaxPDULength),
		host.WithARTIMTimeout(c.Timeouts.ARTIM),
		host.WithMessageTimeout(c.Timeouts.Message),
	}
	if c.Timeouts.ReleaseGrace > 0 {
		opts = append(opts, host.WithReleaseGrace(c.Timeouts.ReleaseGrace))
	}
	if c.WorkerPoolSize > 0 {
		opts = append(opts, host.WithWorkerPoolSize(c.WorkerPoolSize))
	}
	if c.AsyncOps != nil {
		opts = append(opts, host.WithAsyncOps(c.AsyncOps.Invoked, c.AsyncOps.Performed))
	}
	if c.MaxMessageLength > 0 {
		opts = append(opts, host.WithMaxMessageLength(c.MaxMessageLength))
	}
	return opts
}

// ServerOptions configure a server.Server from c.
func (c *Config) ServerOptions() ([]server.Option, error) {
	policy, err := c.NegotiationPolicy()
	if err != nil {
		return nil, err
	}
	opts := []server.Option{
		server.WithPolicy(policy),
		server.WithReadTimeout(c.Timeouts.Read),
		server.WithWriteTimeout(c.Timeouts.Write),
		server.WithMaxAssociations(c.MaxAssociations),
		server.WithHostOptions(c.HostOptions()...),
	}
	if c.StrictAETitle {
		opts = append(opts, server.WithStrictAETitle())
	}
	if c.RejectWhenNoContexts {
		opts = append(opts, server.WithRejectWhenNoContexts())
	}
	return opts, nil
}
