package decoy

import (
	"encoding/hex"
	"math/big"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/ghostpni/ghostpni/internal/core"
	"github.com/ghostpni/ghostpni/internal/core/rpc"
)

// Default swap path when a network has fewer than two token contracts.
var defaultSwapPath = []string{
	"0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
	"0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
}

// Call is one generated decoy request.
type Call struct {
	Contract *Contract
	Function string
	Method   string
	Payload  []byte
}

// Factory produces read-only eth_call decoys against popular contracts,
// sampled by category weight. With no contracts it falls back to plain
// chain reads. It is safe for concurrent use.
type Factory struct {
	mu         sync.Mutex
	rng        *rand.Rand
	byCategory map[Category][]Contract
	categories []Category
	weights    []float64
	tokens     []string
	nextID     uint64
}

// NewFactory builds a factory over the given contracts. Contracts without a
// category are classified by name. A nil rng uses a random seed.
func NewFactory(contracts []Contract, rng *rand.Rand) *Factory {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	f := &Factory{
		rng:        rng,
		byCategory: make(map[Category][]Contract),
	}
	seen := make(map[string]struct{}, len(contracts))
	for _, contract := range contracts {
		key := strings.ToLower(strings.TrimSpace(contract.Address))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		if contract.Category == "" {
			contract.Category = Classify(contract.Name)
		}
		f.byCategory[contract.Category] = append(f.byCategory[contract.Category], contract)
		if contract.Category == CategoryERC20 {
			f.tokens = append(f.tokens, contract.Address)
		}
	}

	for _, category := range Categories() {
		if len(f.byCategory[category]) == 0 {
			continue
		}
		f.categories = append(f.categories, category)
		f.weights = append(f.weights, CategoryWeights[category])
	}
	return f
}

// Contracts returns how many contracts the factory samples from.
func (f *Factory) Contracts() int {
	total := 0
	for _, contracts := range f.byCategory {
		total += len(contracts)
	}
	return total
}

// Build returns the payload for the next decoy.
func (f *Factory) Build(_ core.Source) ([]byte, error) {
	call, err := f.Next()
	if err != nil {
		return nil, err
	}
	return call.Payload, nil
}

// Next generates one decoy call.
func (f *Factory) Next() (Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	if len(f.categories) == 0 {
		return f.chainRead()
	}

	category := f.pickCategory()
	candidates := f.byCategory[category]
	contract := candidates[f.rng.IntN(len(candidates))]

	function, data, err := f.calldata(contract)
	if err != nil {
		return Call{}, err
	}

	payload, err := rpc.NewRequest(f.nextID, "eth_call", map[string]string{
		"to":   contract.Address,
		"data": "0x" + hex.EncodeToString(data),
	}, "latest")
	if err != nil {
		return Call{}, err
	}
	return Call{Contract: &contract, Function: function, Method: "eth_call", Payload: payload}, nil
}

func (f *Factory) pickCategory() Category {
	total := 0.0
	for _, weight := range f.weights {
		total += weight
	}
	roll := f.rng.Float64() * total
	for i, weight := range f.weights {
		if roll < weight {
			return f.categories[i]
		}
		roll -= weight
	}
	return f.categories[len(f.categories)-1]
}

func (f *Factory) calldata(contract Contract) (string, []byte, error) {
	switch contract.Category {
	case CategoryDEX:
		path := defaultSwapPath
		if len(f.tokens) >= 2 {
			first := f.rng.IntN(len(f.tokens))
			second := (first + 1 + f.rng.IntN(len(f.tokens)-1)) % len(f.tokens)
			path = []string{f.tokens[first], f.tokens[second]}
		}
		amount := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(6+f.rng.IntN(13))), nil)
		tail, err := encodeAddressArray(path)
		if err != nil {
			return "", nil, err
		}
		words := append([][]byte{encodeUint(amount), encodeUint64(2 * wordSize)}, tail...)
		return "getAmountsOut", encodeCall("getAmountsOut(uint256,address[])", words...), nil

	case CategoryLending:
		word, err := encodeAddress(f.randomAddress())
		if err != nil {
			return "", nil, err
		}
		return "getUserAccountData", encodeCall("getUserAccountData(address)", word), nil

	case CategoryNFT:
		tokenID := uint64(1 + f.rng.IntN(10000))
		return "getCurrentPrice", encodeCall("getCurrentPrice(uint256)", encodeUint64(tokenID)), nil

	case CategoryGovernance:
		word, err := encodeAddress(f.randomAddress())
		if err != nil {
			return "", nil, err
		}
		return "getVotes", encodeCall("getVotes(address)", word), nil

	case CategoryBridge:
		return "totalSupply", encodeCall("totalSupply()"), nil

	default:
		word, err := encodeAddress(f.randomAddress())
		if err != nil {
			return "", nil, err
		}
		return "balanceOf", encodeCall("balanceOf(address)", word), nil
	}
}

func (f *Factory) chainRead() (Call, error) {
	var (
		method string
		params []any
	)
	switch f.rng.IntN(4) {
	case 0:
		method = "eth_blockNumber"
	case 1:
		method = "eth_gasPrice"
	case 2:
		method = "eth_chainId"
	default:
		method = "eth_getBalance"
		params = []any{f.randomAddress(), "latest"}
	}

	payload, err := rpc.NewRequest(f.nextID, method, params...)
	if err != nil {
		return Call{}, err
	}
	return Call{Function: method, Method: method, Payload: payload}, nil
}

func (f *Factory) randomAddress() string {
	raw := make([]byte, 20)
	for i := range raw {
		raw[i] = byte(f.rng.UintN(256))
	}
	return "0x" + hex.EncodeToString(raw)
}
