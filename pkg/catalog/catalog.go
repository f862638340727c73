// Package catalog holds the seeded reference data the pipeline needs at
// startup: known token program identifiers, supported networks, and the
// payment facilitators allowed to deliver webhooks. Keeping these in one
// loadable object avoids scattered literals.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Known token program identifiers. A transaction without a transfer from
// one of these programs cannot back a vote.
const (
	TokenProgram     = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	Token2022Program = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
)

// Network describes a supported ledger network and its facilitators.
type Network struct {
	Name         string   `yaml:"name" json:"name"`
	ChainID      string   `yaml:"chain_id,omitempty" json:"chain_id,omitempty"`
	Facilitators []string `yaml:"facilitators,omitempty" json:"facilitators,omitempty"`
}

// Catalog is the reference data object loaded once at startup.
type Catalog struct {
	TokenPrograms []string  `yaml:"token_programs" json:"token_programs"`
	Networks      []Network `yaml:"networks" json:"networks"`
}

// Default returns the built-in catalog used when no file is configured.
func Default() *Catalog {
	return &Catalog{
		TokenPrograms: []string{TokenProgram, Token2022Program},
		Networks: []Network{
			{Name: "mainnet"},
			{Name: "devnet"},
		},
	}
}

// LoadFile loads a catalog from a YAML file. Missing token_programs fall
// back to the built-in pair so a partial file never disables decoding.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog %q: %w", path, err)
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog %q: %w", path, err)
	}

	if len(c.TokenPrograms) == 0 {
		c.TokenPrograms = []string{TokenProgram, Token2022Program}
	}
	return &c, nil
}

// IsTokenProgram reports whether addr is a recognized token program.
func (c *Catalog) IsTokenProgram(addr string) bool {
	for _, p := range c.TokenPrograms {
		if p == addr {
			return true
		}
	}
	return false
}

// HasNetwork reports whether the named network is supported.
func (c *Catalog) HasNetwork(name string) bool {
	for _, n := range c.Networks {
		if n.Name == name {
			return true
		}
	}
	return false
}

// IsFacilitator reports whether addr is a known facilitator on any network.
func (c *Catalog) IsFacilitator(addr string) bool {
	for _, n := range c.Networks {
		for _, f := range n.Facilitators {
			if f == addr {
				return true
			}
		}
	}
	return false
}
