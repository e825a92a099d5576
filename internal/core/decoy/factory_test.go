package decoy

import (
	"encoding/hex"
	"encoding/json"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostpni/ghostpni/internal/core"
	"github.com/ghostpni/ghostpni/internal/core/rpc"
)

func testRand() *rand.Rand {
	return rand.New(rand.NewPCG(7, 11))
}

func TestSelectorMatchesKnownValues(t *testing.T) {
	cases := map[string]string{
		"balanceOf(address)":               "70a08231",
		"transfer(address,uint256)":        "a9059cbb",
		"totalSupply()":                    "18160ddd",
		"getAmountsOut(uint256,address[])": "d06ca61f",
	}
	for signature, want := range cases {
		selector := Selector(signature)
		assert.Equal(t, want, hex.EncodeToString(selector[:]), signature)
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, CategoryDEX, Classify("UniswapV2Router"))
	assert.Equal(t, CategoryLending, Classify("AaveV3Pool"))
	assert.Equal(t, CategoryNFT, Classify("ERC721 Collection"))
	assert.Equal(t, CategoryBridge, Classify("Canonical Bridge"))
	assert.Equal(t, CategoryGovernance, Classify("GovernorBravo"))
	assert.Equal(t, CategoryERC20, Classify("USDC"))
}

func TestKnownContracts(t *testing.T) {
	sepolia := KnownContracts("Sepolia")
	require.Len(t, sepolia, 4)
	for _, contract := range sepolia {
		assert.NotEmpty(t, contract.Category)
	}
	assert.Empty(t, KnownContracts("bsc_testnet"))
}

func TestFactoryBuildsEthCall(t *testing.T) {
	factory := NewFactory(KnownContracts("sepolia"), testRand())
	assert.Equal(t, 4, factory.Contracts())

	seen := map[string]int{}
	for i := 0; i < 400; i++ {
		call, err := factory.Next()
		require.NoError(t, err)
		require.NotNil(t, call.Contract)
		assert.Equal(t, "eth_call", call.Method)
		seen[call.Function]++

		req, err := rpc.ParseRequest(call.Payload)
		require.NoError(t, err)
		assert.Equal(t, "eth_call", req.Method)

		var params []json.RawMessage
		require.NoError(t, json.Unmarshal(req.Params, &params))
		require.Len(t, params, 2)

		var target struct {
			To   string `json:"to"`
			Data string `json:"data"`
		}
		require.NoError(t, json.Unmarshal(params[0], &target))
		assert.Equal(t, call.Contract.Address, target.To)
		assert.True(t, strings.HasPrefix(target.Data, "0x"))
		assert.Equal(t, 0, (len(target.Data)-2-8)%64, "calldata must be whole words")
	}

	assert.Greater(t, seen["getAmountsOut"], 0)
	assert.Greater(t, seen["getUserAccountData"], 0)
	assert.Greater(t, seen["balanceOf"], 0)
	assert.Greater(t, seen["getAmountsOut"], seen["getUserAccountData"])
}

func TestFactoryFallsBackToChainReads(t *testing.T) {
	factory := NewFactory(nil, testRand())

	methods := map[string]bool{}
	for i := 0; i < 100; i++ {
		payload, err := factory.Build(core.SourceHeartbeat)
		require.NoError(t, err)
		req, err := rpc.ParseRequest(payload)
		require.NoError(t, err)
		assert.False(t, rpc.IsTransactionMethod(req.Method))
		methods[req.Method] = true
	}
	assert.Len(t, methods, 4)
}

func TestFactoryDeduplicatesContracts(t *testing.T) {
	contracts := append(KnownContracts("sepolia"), Contract{Address: "0x7a250d5630b4cf539739df2c5dacb4c659f2488d", Name: "dup"})
	factory := NewFactory(contracts, testRand())
	assert.Equal(t, 4, factory.Contracts())
}

func TestEncodeAddressRejectsBadInput(t *testing.T) {
	_, err := encodeAddress("0x1234")
	require.Error(t, err)

	word, err := encodeAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	require.NoError(t, err)
	assert.Len(t, word, 32)
	assert.Equal(t, make([]byte, 12), word[:12])
}
