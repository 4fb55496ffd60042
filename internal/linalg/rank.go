package linalg

import "gonum.org/v1/gonum/mat"

// Rank is the numerical rank of m from its singular values
func Rank(m mat.Matrix) int {
	r, c := m.Dims()
	if r == 0 || c == 0 {
		return 0
	}
	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDNone) {
		return 0
	}
	values := svd.Values(nil)
	if len(values) == 0 || values[0] == 0 {
		return 0
	}
	tol := float64(max(r, c)) * values[0] * 2.220446049250313e-16
	rank := 0
	for _, v := range values {
		if v > tol {
			rank++
		}
	}
	return rank
}
