package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fulmenhq/gofulmen/schema"
	"gopkg.in/yaml.v3"

	"github.com/ghostpni/ghostpni/internal/core"
)

// networksFile is the on-disk shape of networks_file.
type networksFile struct {
	Networks []core.Network `yaml:"networks"`
}

//go:embed schemas/networks.schema.json
var networksSchema []byte

// LoadNetworksFile parses a YAML file of custom networks. The document is
// checked against the networks schema before it is decoded.
func LoadNetworksFile(path string) ([]core.Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read networks file: %w", err)
	}
	if err := validateNetworksDocument(data); err != nil {
		return nil, fmt.Errorf("networks file %s: %w", path, err)
	}

	var parsed networksFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse networks file %s: %w", path, err)
	}
	for _, network := range parsed.Networks {
		if err := network.Validate(); err != nil {
			return nil, fmt.Errorf("networks file %s: %w", path, err)
		}
	}
	return parsed.Networks, nil
}

func validateNetworksDocument(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode for validation: %w", err)
	}

	validator, err := schema.NewValidator(networksSchema)
	if err != nil {
		return fmt.Errorf("compile networks schema: %w", err)
	}
	diagnostics, err := validator.ValidateJSON(payload)
	if err != nil {
		return err
	}
	if len(diagnostics) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, diagnostics[0].Message)
	}
	return nil
}

// CustomNetworks returns networks from networks_file followed by inline
// networks. Inline entries win over file entries with the same name.
func (c *Config) CustomNetworks() ([]core.Network, error) {
	var custom []core.Network
	if path := strings.TrimSpace(c.NetworksFile); path != "" {
		fromFile, err := LoadNetworksFile(path)
		if err != nil {
			return nil, err
		}
		custom = append(custom, fromFile...)
	}

	names := make([]string, 0, len(c.Networks))
	for name := range c.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		custom = append(custom, core.Network{
			Name:      name,
			Endpoints: append([]string(nil), c.Networks[name]...),
		})
	}
	return custom, nil
}

// AllNetworks returns built-in and custom networks sorted by name.
func (c *Config) AllNetworks() ([]core.Network, error) {
	custom, err := c.CustomNetworks()
	if err != nil {
		return nil, err
	}
	return core.MergeNetworks(custom), nil
}

// ResolveNetwork returns the selected network profile.
func (c *Config) ResolveNetwork() (core.Network, error) {
	name := strings.ToLower(strings.TrimSpace(c.Network))
	if name == "" {
		name = DefaultNetwork
	}

	networks, err := c.AllNetworks()
	if err != nil {
		return core.Network{}, err
	}
	for _, network := range networks {
		if network.Name == name {
			if err := network.Validate(); err != nil {
				return core.Network{}, err
			}
			return network, nil
		}
	}

	known := make([]string, 0, len(networks))
	for _, network := range networks {
		known = append(known, network.Name)
	}
	return core.Network{}, fmt.Errorf("unknown network %q (known: %s)", name, strings.Join(known, ", "))
}
