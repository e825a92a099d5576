package core

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Network is a named, ordered list of public RPC endpoints.
type Network struct {
	Name        string   `json:"name" yaml:"name"`
	ChainID     int64    `json:"chain_id,omitempty" yaml:"chain_id,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Endpoints   []string `json:"endpoints" yaml:"endpoints"`
	BuiltIn     bool     `json:"builtin" yaml:"-"`
}

// BuiltInNetworks are the testnet profiles bundled with ghostpni.
var BuiltInNetworks = []Network{
	{
		Name:        "sepolia",
		ChainID:     11155111,
		Description: "Ethereum Sepolia testnet",
		Endpoints: []string{
			"https://rpc.sepolia.org",
			"https://ethereum-sepolia.publicnode.com",
			"https://rpc2.sepolia.org",
			"https://sepolia.gateway.tenderly.co",
		},
	},
	{
		Name:        "goerli",
		ChainID:     5,
		Description: "Ethereum Goerli testnet",
		Endpoints: []string{
			"https://ethereum-goerli.publicnode.com",
			"https://goerli.gateway.tenderly.co",
			"https://rpc.goerli.eth.gateway.fm",
		},
	},
	{
		Name:        "mumbai",
		ChainID:     80001,
		Description: "Polygon Mumbai testnet",
		Endpoints: []string{
			"https://rpc-mumbai.maticvigil.com",
			"https://polygon-mumbai.gateway.tenderly.co",
			"https://polygon-mumbai-bor.publicnode.com",
		},
	},
	{
		Name:        "bsc_testnet",
		ChainID:     97,
		Description: "BNB Smart Chain testnet",
		Endpoints: []string{
			"https://data-seed-prebsc-1-s1.binance.org:8545",
			"https://bsc-testnet.publicnode.com",
			"https://bsc-testnet.gateway.tenderly.co",
		},
	},
}

// FindBuiltInNetwork looks up a built-in network by name.
func FindBuiltInNetwork(name string) (*Network, bool) {
	needle := normalizeNetworkName(name)
	if needle == "" {
		return nil, false
	}

	for _, network := range BuiltInNetworks {
		if network.Name == needle {
			copied := network
			copied.Endpoints = append([]string(nil), network.Endpoints...)
			copied.BuiltIn = true
			return &copied, true
		}
	}

	return nil, false
}

// Validate checks that a network has a name and at least one usable URL.
func (n Network) Validate() error {
	if normalizeNetworkName(n.Name) == "" {
		return fmt.Errorf("network name is required")
	}
	if len(n.Endpoints) == 0 {
		return fmt.Errorf("network %s: at least one endpoint is required", n.Name)
	}
	for _, raw := range n.Endpoints {
		if err := ValidateEndpointURL(raw); err != nil {
			return fmt.Errorf("network %s: %w", n.Name, err)
		}
	}
	return nil
}

// ValidateEndpointURL accepts absolute http(s) URLs only.
func ValidateEndpointURL(raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", raw, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid endpoint %q: scheme must be http or https", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("invalid endpoint %q: host is required", raw)
	}
	return nil
}

// MergeNetworks overlays custom networks on the built-in set. A custom
// network with a built-in name replaces it.
func MergeNetworks(custom []Network) []Network {
	byName := make(map[string]Network, len(BuiltInNetworks)+len(custom))
	for _, network := range BuiltInNetworks {
		copied := network
		copied.BuiltIn = true
		byName[network.Name] = copied
	}
	for _, network := range custom {
		name := normalizeNetworkName(network.Name)
		if name == "" {
			continue
		}
		network.Name = name
		network.BuiltIn = false
		byName[name] = network
	}

	merged := make([]Network, 0, len(byName))
	for _, network := range byName {
		merged = append(merged, network)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Name < merged[j].Name })
	return merged
}

func normalizeNetworkName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
