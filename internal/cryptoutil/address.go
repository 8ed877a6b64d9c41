package cryptoutil

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // required for Hash160, matches the rest of the corpus
)

// Hash160 is SHA-256 followed by RIPEMD-160, the digest P2PKH/P2SH/P2WPKH
// addresses are built from.
func Hash160(b []byte) []byte {
	sum := sha256.Sum256(b)
	h := ripemd160.New()
	h.Write(sum[:])
	return h.Sum(nil)
}

// Base58CheckAddress encodes a version byte and a payload (typically a
// Hash160 digest) as a Base58Check address string, used for legacy P2PKH
// and P2SH addresses.
func Base58CheckAddress(version byte, payload []byte) string {
	return base58.CheckEncode(payload, version)
}

// SegwitAddress encodes a witness version and program as a bech32 (version
// 0) or bech32m (version 1+, BIP350) address under the given human-readable
// part. Used for P2WPKH, P2WSH, and P2TR addresses.
func SegwitAddress(hrp string, witnessVersion byte, program []byte) (string, error) {
	converted, err := bech32.ConvertBits(program, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("convert witness program to 5-bit groups: %w", err)
	}

	data := make([]byte, 0, len(converted)+1)
	data = append(data, witnessVersion)
	data = append(data, converted...)

	if witnessVersion == 0 {
		addr, err := bech32.Encode(hrp, data)
		if err != nil {
			return "", fmt.Errorf("bech32 encode: %w", err)
		}
		return addr, nil
	}

	addr, err := bech32.EncodeM(hrp, data)
	if err != nil {
		return "", fmt.Errorf("bech32m encode: %w", err)
	}
	return addr, nil
}
