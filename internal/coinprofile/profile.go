// Package coinprofile carries the coin-specific constants the core needs
// injected rather than hardcoded: magic bytes, address version bytes, the
// genesis hash, and feature flags. A single value, not a type per coin,
// passed by pointer to every component that needs it.
package coinprofile

// Network distinguishes mainnet from testnet/regtest variants of a coin.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

// Profile is the set of constants a coin-family parser needs. It is built
// once per run (from the built-in table) and
// shared read-only across all workers.
type Profile struct {
	// Name identifies the coin in chain-storage files and consumer output
	// (e.g. "BTC", "LTC", "RVN").
	Name string
	// Network distinguishes mainnet from testnet.
	Network Network
	// Magic is the 4-byte little-endian frame marker at the head of every
	// block record in a blk*.dat file.
	Magic uint32
	// DefaultBlockDir is the default location of blk*.dat files for this
	// coin's reference node, used when --blockchain-dir is not given.
	DefaultBlockDir string
	// P2PKHVersion is the Base58Check version byte for P2PKH addresses.
	P2PKHVersion byte
	// P2SHVersion is the Base58Check version byte for P2SH addresses.
	P2SHVersion byte
	// GenesisHash is the hex-encoded, big-endian (display order) hash of
	// the genesis block, the root of the canonical chain walk.
	GenesisHash string
	// Bech32HRP is the human-readable part for segwit bech32/bech32m
	// addresses. Empty means this coin has no segwit address format.
	Bech32HRP string
	// SegwitEnabled gates whether the transaction decoder looks for the
	// segwit marker/flag bytes at all. Coins without segwit get a decoder
	// that never attempts witness parsing.
	SegwitEnabled bool
}

// HasBech32 reports whether this profile supports segwit bech32 addresses.
func (p *Profile) HasBech32() bool {
	return p.SegwitEnabled && p.Bech32HRP != ""
}

// Builtin returns the built-in profile for name/network, and whether one
// was found. Names are case-sensitive coin tickers (BTC, LTC, RVN).
func Builtin(name string, network Network) (Profile, bool) {
	profiles, ok := builtinTable[name]
	if !ok {
		return Profile{}, false
	}
	p, ok := profiles[network]
	return p, ok
}

var builtinTable = map[string]map[Network]Profile{
	"BTC": {
		Mainnet: {
			Name:            "BTC",
			Network:         Mainnet,
			Magic:           0xd9b4bef9,
			DefaultBlockDir: "~/.bitcoin/blocks",
			P2PKHVersion:    0x00,
			P2SHVersion:     0x05,
			GenesisHash:     "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f",
			Bech32HRP:       "bc",
			SegwitEnabled:   true,
		},
		Testnet: {
			Name:            "BTC",
			Network:         Testnet,
			Magic:           0x0709110b,
			DefaultBlockDir: "~/.bitcoin/testnet3/blocks",
			P2PKHVersion:    0x6f,
			P2SHVersion:     0xc4,
			GenesisHash:     "000000000933ea01ad0ee984209779baaec3ced90fa3f408719526f8d77f4943",
			Bech32HRP:       "tb",
			SegwitEnabled:   true,
		},
	},
	"LTC": {
		Mainnet: {
			Name:            "LTC",
			Network:         Mainnet,
			Magic:           0xdbb6c0fb,
			DefaultBlockDir: "~/.litecoin/blocks",
			P2PKHVersion:    0x30,
			P2SHVersion:     0x32,
			GenesisHash:     "12a765e31ffd4059bada1e25190f6e98c99d9714d334efa41a195a7e7e04bfe2",
			Bech32HRP:       "ltc",
			SegwitEnabled:   true,
		},
	},
	"RVN": {
		Mainnet: {
			Name:            "RVN",
			Network:         Mainnet,
			Magic:           0x4e564152,
			DefaultBlockDir: "~/.raven/blocks",
			P2PKHVersion:    0x3c,
			P2SHVersion:     0x7a,
			GenesisHash:     "0000006b444bc2f7f66c5be36b4a2790e8d8f34f53c4ad0b3f1f3e64a5dadb03",
			Bech32HRP:       "",
			SegwitEnabled:   false,
		},
	},
}
