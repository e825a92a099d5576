package decoy

import (
	"encoding/hex"
	"errors"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"
)

const wordSize = 32

// Selector returns the 4-byte function selector for a canonical signature
// such as "balanceOf(address)".
func Selector(signature string) [4]byte {
	hash := sha3.NewLegacyKeccak256()
	_, _ = hash.Write([]byte(signature))
	sum := hash.Sum(nil)

	var selector [4]byte
	copy(selector[:], sum[:4])
	return selector
}

func encodeUint(value *big.Int) []byte {
	word := make([]byte, wordSize)
	if value == nil || value.Sign() <= 0 {
		return word
	}
	return value.FillBytes(word)
}

func encodeUint64(value uint64) []byte {
	return encodeUint(new(big.Int).SetUint64(value))
}

func encodeAddress(address string) ([]byte, error) {
	value := strings.TrimPrefix(strings.TrimPrefix(address, "0x"), "0X")
	if len(value) != 40 {
		return nil, errors.New("address must be 20 bytes of hex")
	}
	raw, err := hex.DecodeString(value)
	if err != nil {
		return nil, err
	}
	word := make([]byte, wordSize)
	copy(word[wordSize-len(raw):], raw)
	return word, nil
}

// encodeCall builds calldata from a selector and pre-encoded head words.
func encodeCall(signature string, words ...[]byte) []byte {
	selector := Selector(signature)
	data := make([]byte, 0, 4+len(words)*wordSize)
	data = append(data, selector[:]...)
	for _, word := range words {
		data = append(data, word...)
	}
	return data
}

// encodeAddressArray encodes a dynamic address[] tail: length then elements.
func encodeAddressArray(addresses []string) ([][]byte, error) {
	words := make([][]byte, 0, len(addresses)+1)
	words = append(words, encodeUint64(uint64(len(addresses))))
	for _, address := range addresses {
		word, err := encodeAddress(address)
		if err != nil {
			return nil, err
		}
		words = append(words, word)
	}
	return words, nil
}
