package chainindex

import "math/big"

// workFromBits converts a block's compact "bits" target into the amount of
// proof-of-work it represents (2^256 / (target+1)), the quantity summed
// across a candidate branch to break walk-length ties.
func workFromBits(bits uint32) *big.Int {
	target := compactToBig(bits)
	if target.Sign() <= 0 {
		return big.NewInt(0)
	}

	denominator := new(big.Int).Add(target, big.NewInt(1))
	numerator := new(big.Int).Lsh(big.NewInt(1), 256)
	return new(big.Int).Div(numerator, denominator)
}

// compactToBig expands Bitcoin's compact ("nBits") target encoding: the top
// byte is an exponent, the low 23 bits are a mantissa, and bit 0x00800000
// is a sign flag.
func compactToBig(compact uint32) *big.Int {
	mantissa := compact & 0x007fffff
	exponent := compact >> 24
	negative := compact&0x00800000 != 0

	result := new(big.Int)
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		result.SetInt64(int64(mantissa))
	} else {
		result.SetInt64(int64(mantissa))
		result.Lsh(result, 8*uint(exponent-3))
	}

	if negative {
		result.Neg(result)
	}
	return result
}
