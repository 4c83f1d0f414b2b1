package expansion

import (
	"fmt"
	"math/cmplx"
)

// Matrix is a dense p×p translation operator, row-major.
type Matrix [][]complex128

func newMatrix(p int) Matrix {
	cells := make([]complex128, p*p)
	m := make(Matrix, p)
	for i := range m {
		m[i] = cells[i*p : (i+1)*p : (i+1)*p]
	}
	return m
}

// FarToFarMatrix returns the S|S operator for translation t.
func (k *Kernel) FarToFarMatrix(t complex128) Matrix { return k.farToFarMatrix(t) }

// FarToNearMatrix returns the S|R operator for translation t.
func (k *Kernel) FarToNearMatrix(t complex128) (Matrix, error) { return k.farToNearMatrix(t) }

// NearToNearMatrix returns the R|R operator for translation t.
func (k *Kernel) NearToNearMatrix(t complex128) Matrix { return k.nearToNearMatrix(t) }

// farToFarMatrix is lower triangular with a unit diagonal:
//
//	M[i][0] = (-1)^(i+1) t^i / i              (i >= 1)
//	M[i][j] = (-1)^(i-j) C(i-1, i-j) t^(i-j)  (1 <= j <= i)
//
// built right to left along each row from the diagonal.
func (k *Kernel) farToFarMatrix(t complex128) Matrix {
	p := k.p
	m := newMatrix(p)
	for i := 0; i < p; i++ {
		m[i][i] = 1
	}
	if p > 1 {
		m[1][0] = t
	}
	for i := 2; i < p; i++ {
		m[i][0] = -m[i-1][0] * t * complex(float64(i-1)/float64(i), 0)
	}
	for i := 1; i < p; i++ {
		for j := i - 1; j >= 1; j-- {
			m[i][j] = -m[i][j+1] * t * complex(float64(j)/float64(i-j), 0)
		}
	}
	return m
}

// farToNearMatrix is dense:
//
//	M[0][0] = log t
//	M[i][0] = (-1)^(i+1) / (i t^i)                 (i >= 1)
//	M[0][j] = t^-j                                 (j >= 1)
//	M[i][j] = -M[i-1][j] (i+j-1) / (i t)           (i, j >= 1)
func (k *Kernel) farToNearMatrix(t complex128) (Matrix, error) {
	if t == 0 {
		return nil, fmt.Errorf("%w: S|R needs log(t)", ErrZeroTranslation)
	}
	p := k.p
	m := newMatrix(p)
	inv := 1 / t
	m[0][0] = cmplx.Log(t)
	if p > 1 {
		m[1][0] = inv
	}
	for i := 2; i < p; i++ {
		m[i][0] = -m[i-1][0] * inv * complex(float64(i-1)/float64(i), 0)
	}
	pow := complex(1, 0)
	for j := 1; j < p; j++ {
		pow *= inv
		m[0][j] = pow
	}
	for i := 1; i < p; i++ {
		for j := 1; j < p; j++ {
			m[i][j] = -m[i-1][j] * inv * complex(float64(i+j-1)/float64(i), 0)
		}
	}
	return m, nil
}

// nearToNearMatrix is upper triangular with a unit diagonal:
//
//	M[i][j] = C(j, i) t^(j-i)  (j >= i)
//
// Row 0 holds increasing powers of t. Entries are built left to right along
// each row, M[i][j] = M[i][j-1] t j / (j-i), which never divides by t.
func (k *Kernel) nearToNearMatrix(t complex128) Matrix {
	p := k.p
	m := newMatrix(p)
	for i := 0; i < p; i++ {
		m[i][i] = 1
		for j := i + 1; j < p; j++ {
			m[i][j] = m[i][j-1] * t * complex(float64(j)/float64(j-i), 0)
		}
	}
	return m
}
