package crypto

import (
	"crypto/rand"
	"fmt"

	"github.com/nornlabs/norn/errs"
)

// Shamir secret sharing over GF(256), used to split a keystore's decrypted
// private key into recoverable shards. No library in the example pack
// implements this (neither teacher nor the rest of the retrieval set ships
// a secret-sharing dependency), so it is hand-rolled; the polynomial
// arithmetic below is the standard AES-style GF(256) field with reducing
// polynomial x^8+x^4+x^3+x+1 (0x11B), the same field used by Reed-Solomon
// and AES's MixColumns step.

// ShamirShare is one (x, y-vector) share of a split secret.
type ShamirShare struct {
	X byte
	Y []byte
}

// ShamirSplit splits secret into n shares such that any k of them
// reconstruct it, and fewer than k reveal nothing. n must be in [k, 255].
func ShamirSplit(secret []byte, k, n int) ([]ShamirShare, error) {
	if k < 2 || n < k || n > 255 {
		return nil, fmt.Errorf("%w: shamir requires 2<=k<=n<=255, got k=%d n=%d", errs.ErrValidation, k, n)
	}
	coeffs := make([][]byte, len(secret))
	for i, s := range secret {
		c := make([]byte, k-1)
		if _, err := rand.Read(c); err != nil {
			return nil, fmt.Errorf("shamir: generate coefficients: %w", err)
		}
		coeffs[i] = append([]byte{s}, c...)
	}

	shares := make([]ShamirShare, n)
	for i := 0; i < n; i++ {
		x := byte(i + 1) // x=0 would leak the secret byte directly
		y := make([]byte, len(secret))
		for b, poly := range coeffs {
			y[b] = gfEvalPoly(poly, x)
		}
		shares[i] = ShamirShare{X: x, Y: y}
	}
	return shares, nil
}

// ShamirCombine reconstructs the secret from k or more shares via
// Lagrange interpolation at x=0.
func ShamirCombine(shares []ShamirShare) ([]byte, error) {
	if len(shares) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 shares to combine", errs.ErrValidation)
	}
	n := len(shares[0].Y)
	for _, s := range shares {
		if len(s.Y) != n {
			return nil, fmt.Errorf("%w: mismatched share lengths", errs.ErrValidation)
		}
	}
	seen := make(map[byte]bool, len(shares))
	for _, s := range shares {
		if seen[s.X] {
			return nil, fmt.Errorf("%w: duplicate share x=%d", errs.ErrValidation, s.X)
		}
		seen[s.X] = true
	}

	secret := make([]byte, n)
	for b := 0; b < n; b++ {
		var acc byte
		for i, si := range shares {
			num := byte(1)
			den := byte(1)
			for j, sj := range shares {
				if i == j {
					continue
				}
				num = gfMul(num, sj.X)
				den = gfMul(den, gfAdd(si.X, sj.X))
			}
			term := gfMul(si.Y[b], gfMul(num, gfInv(den)))
			acc = gfAdd(acc, term)
		}
		secret[b] = acc
	}
	return secret, nil
}

func gfAdd(a, b byte) byte { return a ^ b }

func gfMul(a, b byte) byte {
	var p byte
	for i := 0; i < 8; i++ {
		if b&1 != 0 {
			p ^= a
		}
		hi := a & 0x80
		a <<= 1
		if hi != 0 {
			a ^= 0x1B
		}
		b >>= 1
	}
	return p
}

// gfInv returns the multiplicative inverse of a in GF(256) via Fermat's
// little theorem: a^254 = a^-1 for nonzero a.
func gfInv(a byte) byte {
	if a == 0 {
		return 0
	}
	result := byte(1)
	base := a
	exp := 254
	for exp > 0 {
		if exp&1 != 0 {
			result = gfMul(result, base)
		}
		base = gfMul(base, base)
		exp >>= 1
	}
	return result
}

func gfEvalPoly(coeffs []byte, x byte) byte {
	var result byte
	for i := len(coeffs) - 1; i >= 0; i-- {
		result = gfAdd(gfMul(result, x), coeffs[i])
	}
	return result
}
