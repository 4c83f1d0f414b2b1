// Package expansion implements the truncated series of the 2-D logarithmic
// kernel log(y-x) and the operators translating them between centers.
//
// Two families are used. The far-field (S) family is S_0(z) = log z and
// S_m(z) = z^-m, valid outside a disk around its center. The local (R) family
// is R_m(z) = z^m, valid inside a disk. Every coefficient slice has exactly p
// entries. Translations act on t = to - from.
package expansion

import (
	"errors"
	"fmt"
	"math/cmplx"
)

var (
	ErrInvalidOrder      = errors.New("expansion: order must be positive")
	ErrZeroTranslation   = errors.New("expansion: zero translation vector")
	ErrCoefficientLength = errors.New("expansion: coefficient length does not match order")
)

// Kernel holds the truncation order p shared by all operators.
type Kernel struct {
	p int
}

// New returns a kernel truncating every series after p terms.
func New(p int) (*Kernel, error) {
	if p <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOrder, p)
	}
	return &Kernel{p: p}, nil
}

// Order returns p.
func (k *Kernel) Order() int { return k.p }

// FarCoefficients returns the S-expansion of a unit charge at xi about xstar:
// b[0] = 1 and b[m] = -(xi-xstar)^m / m.
func (k *Kernel) FarCoefficients(xi, xstar complex128) []complex128 {
	b := make([]complex128, k.p)
	b[0] = 1
	w := xi - xstar
	pow := complex(1, 0)
	for m := 1; m < k.p; m++ {
		pow *= w
		b[m] = -pow / complex(float64(m), 0)
	}
	return b
}

// AddFarCoefficients accumulates charge·FarCoefficients(xi, xstar) into dst
// without allocating.
func (k *Kernel) AddFarCoefficients(dst []complex128, xi, xstar complex128, charge float64) {
	q := complex(charge, 0)
	dst[0] += q
	w := xi - xstar
	pow := complex(1, 0)
	for m := 1; m < k.p; m++ {
		pow *= w
		dst[m] -= q * pow / complex(float64(m), 0)
	}
}

// NearPowers returns the R basis (y-xstar)^m for m = 0..p-1.
func (k *Kernel) NearPowers(y, xstar complex128) []complex128 {
	r := make([]complex128, k.p)
	z := y - xstar
	r[0] = 1
	for m := 1; m < k.p; m++ {
		r[m] = r[m-1] * z
	}
	return r
}

// EvaluateNear returns the real part of Σ d[m]·(y-xstar)^m.
func (k *Kernel) EvaluateNear(d []complex128, y, xstar complex128) float64 {
	z := y - xstar
	pow := complex(1, 0)
	var sum complex128
	for m := 0; m < k.p; m++ {
		sum += d[m] * pow
		pow *= z
	}
	return real(sum)
}

// FarToFar re-centers an S expansion from one center to another (S|S).
func (k *Kernel) FarToFar(from, to complex128, coeffs []complex128) ([]complex128, error) {
	if err := k.checkLen(coeffs); err != nil {
		return nil, err
	}
	out := make([]complex128, k.p)
	k.addProduct(out, k.farToFarMatrix(to-from), coeffs)
	return out, nil
}

// FarToNear converts an S expansion about from into an R expansion about to
// (S|R). It is the only operator that takes a logarithm and rejects t = 0.
func (k *Kernel) FarToNear(from, to complex128, coeffs []complex128) ([]complex128, error) {
	if err := k.checkLen(coeffs); err != nil {
		return nil, err
	}
	m, err := k.farToNearMatrix(to - from)
	if err != nil {
		return nil, err
	}
	out := make([]complex128, k.p)
	k.addProduct(out, m, coeffs)
	return out, nil
}

// NearToNear re-centers an R expansion (R|R).
func (k *Kernel) NearToNear(from, to complex128, coeffs []complex128) ([]complex128, error) {
	if err := k.checkLen(coeffs); err != nil {
		return nil, err
	}
	out := make([]complex128, k.p)
	k.addProduct(out, k.nearToNearMatrix(to-from), coeffs)
	return out, nil
}

// AddFarToFar accumulates FarToFar(from, to, coeffs) into dst.
func (k *Kernel) AddFarToFar(dst []complex128, from, to complex128, coeffs []complex128) error {
	if err := k.checkLen(coeffs); err != nil {
		return err
	}
	if err := k.checkLen(dst); err != nil {
		return err
	}
	k.addProduct(dst, k.farToFarMatrix(to-from), coeffs)
	return nil
}

// AddFarToNear accumulates FarToNear(from, to, coeffs) into dst.
func (k *Kernel) AddFarToNear(dst []complex128, from, to complex128, coeffs []complex128) error {
	if err := k.checkLen(coeffs); err != nil {
		return err
	}
	if err := k.checkLen(dst); err != nil {
		return err
	}
	m, err := k.farToNearMatrix(to - from)
	if err != nil {
		return err
	}
	k.addProduct(dst, m, coeffs)
	return nil
}

// AddNearToNear accumulates NearToNear(from, to, coeffs) into dst.
func (k *Kernel) AddNearToNear(dst []complex128, from, to complex128, coeffs []complex128) error {
	if err := k.checkLen(coeffs); err != nil {
		return err
	}
	if err := k.checkLen(dst); err != nil {
		return err
	}
	k.addProduct(dst, k.nearToNearMatrix(to-from), coeffs)
	return nil
}

// DirectPotential is the exact pairwise kernel log(y-x). Callers exclude y == x.
func DirectPotential(y, x complex128) complex128 {
	return cmplx.Log(y - x)
}

func (k *Kernel) checkLen(c []complex128) error {
	if len(c) != k.p {
		return fmt.Errorf("%w: got %d, want %d", ErrCoefficientLength, len(c), k.p)
	}
	return nil
}

// addProduct computes dst += m·v.
func (k *Kernel) addProduct(dst []complex128, m Matrix, v []complex128) {
	for i := 0; i < k.p; i++ {
		row := m[i]
		var s complex128
		for j := 0; j < k.p; j++ {
			if row[j] != 0 {
				s += row[j] * v[j]
			}
		}
		dst[i] += s
	}
}
