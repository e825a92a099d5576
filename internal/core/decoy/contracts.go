package decoy

import (
	"sort"
	"strings"
)

// Category groups contracts for stratified sampling.
type Category string

const (
	CategoryDEX        Category = "dex"
	CategoryLending    Category = "lending"
	CategoryNFT        Category = "nft"
	CategoryBridge     Category = "bridge"
	CategoryGovernance Category = "governance"
	CategoryERC20      Category = "erc20"
)

// CategoryWeights is the share of decoys drawn from each category.
var CategoryWeights = map[Category]float64{
	CategoryDEX:        0.30,
	CategoryLending:    0.20,
	CategoryNFT:        0.15,
	CategoryBridge:     0.10,
	CategoryGovernance: 0.10,
	CategoryERC20:      0.15,
}

// Contract is a decoy target.
type Contract struct {
	Address  string   `json:"address" yaml:"address" mapstructure:"address"`
	Name     string   `json:"name" yaml:"name" mapstructure:"name"`
	Category Category `json:"category,omitempty" yaml:"category,omitempty" mapstructure:"category"`
}

// knownContracts are popular testnet deployments per network.
var knownContracts = map[string][]Contract{
	"sepolia": {
		{Address: "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D", Name: "UniswapV2Router"},
		{Address: "0xfFf9976782d46CC05630D1f6eBAb18b2324d6B14", Name: "WETH"},
		{Address: "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238", Name: "USDC"},
		{Address: "0x6Ae43d3271ff6888e7Fc43Fd7321a503ff738951", Name: "AaveV3Pool"},
	},
	"goerli": {
		{Address: "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D", Name: "UniswapV2Router"},
		{Address: "0xB4FBF271143F4FBf7B91A5ded31805e42b2208d6", Name: "WETH"},
	},
}

// KnownContracts returns the built-in contracts for a network, classified.
func KnownContracts(network string) []Contract {
	known := knownContracts[strings.ToLower(strings.TrimSpace(network))]
	contracts := make([]Contract, 0, len(known))
	for _, contract := range known {
		contract.Category = Classify(contract.Name)
		contracts = append(contracts, contract)
	}
	return contracts
}

// Classify derives a category from a contract name.
func Classify(name string) Category {
	value := strings.ToLower(name)
	switch {
	case containsAny(value, "uniswap", "swap", "dex"):
		return CategoryDEX
	case containsAny(value, "aave", "compound", "lend"):
		return CategoryLending
	case containsAny(value, "nft", "721", "1155"):
		return CategoryNFT
	case strings.Contains(value, "bridge"):
		return CategoryBridge
	case containsAny(value, "governor", "vote"):
		return CategoryGovernance
	default:
		return CategoryERC20
	}
}

// Categories returns the categories in a stable order.
func Categories() []Category {
	categories := make([]Category, 0, len(CategoryWeights))
	for category := range CategoryWeights {
		categories = append(categories, category)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })
	return categories
}

func containsAny(value string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(value, needle) {
			return true
		}
	}
	return false
}
