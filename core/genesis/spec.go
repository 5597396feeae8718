package genesis

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"rbtchain/crypto"
	"rbtchain/native/ringback"
)

// Spec is the YAML genesis document.
type Spec struct {
	GenesisTime string            `yaml:"genesisTime"`
	ChainID     string            `yaml:"chainId"`
	Program     string            `yaml:"program,omitempty"`
	Alloc       map[string]string `yaml:"alloc"`

	genesisTimestamp time.Time
	programID        [20]byte
	balances         map[[20]byte]*big.Int
}

// LoadSpec reads and validates the genesis file at path.
func LoadSpec(path string) (*Spec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := ParseSpec(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// ParseSpec decodes a genesis document, rejecting unknown fields.
func ParseSpec(raw []byte) (*Spec, error) {
	var spec Spec
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("invalid: %w", err)
	}
	return &spec, nil
}

func (s *Spec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

// ProgramID returns the configured program id, or the default one.
func (s *Spec) ProgramID() [20]byte { return s.programID }

func (s *Spec) validate() error {
	ts, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return err
	}
	s.genesisTimestamp = ts

	if strings.TrimSpace(s.ChainID) == "" {
		return fmt.Errorf("chainId must be provided")
	}

	s.programID = ringback.DefaultProgramID
	if program := strings.TrimSpace(s.Program); program != "" {
		addr, err := crypto.DecodeAddress(program)
		if err != nil {
			return fmt.Errorf("program: %w", err)
		}
		if addr.Prefix() != crypto.ProgramPrefix {
			return fmt.Errorf("program: expected %s prefix, got %s", crypto.ProgramPrefix, addr.Prefix())
		}
		s.programID = addr.Array()
	}

	s.balances = make(map[[20]byte]*big.Int, len(s.Alloc))
	for addrStr, amountStr := range s.Alloc {
		addr, err := ParseBech32Account(addrStr)
		if err != nil {
			return fmt.Errorf("alloc[%q]: %w", addrStr, err)
		}
		amount, ok := new(big.Int).SetString(strings.TrimSpace(amountStr), 10)
		if !ok || amount.Sign() < 0 {
			return fmt.Errorf("alloc[%q]: invalid amount %q", addrStr, amountStr)
		}
		if _, dup := s.balances[addr]; dup {
			return fmt.Errorf("alloc[%q]: duplicate account", addrStr)
		}
		s.balances[addr] = amount
	}
	return nil
}

func parseGenesisTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, fmt.Errorf("genesisTime must be provided")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("invalid genesisTime %q", value)
}
