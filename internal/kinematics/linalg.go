package kinematics

// solve6 solves the 6x6 linear system A*x = b by Gauss-Jordan elimination
// with partial pivoting. Returns ok=false if A is (numerically) singular.
func solve6(a [6][6]float64, b [6]float64) (x [6]float64, ok bool) {
	const n = 6
	var aug [n][n + 1]float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			aug[i][j] = a[i][j]
		}
		aug[i][n] = b[i]
	}

	for col := 0; col < n; col++ {
		pivot := col
		best := abs(aug[col][col])
		for row := col + 1; row < n; row++ {
			if v := abs(aug[row][col]); v > best {
				pivot = row
				best = v
			}
		}
		if best < 1e-12 {
			return x, false
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]

		pivotVal := aug[col][col]
		for j := col; j <= n; j++ {
			aug[col][j] /= pivotVal
		}
		for row := 0; row < n; row++ {
			if row == col {
				continue
			}
			factor := aug[row][col]
			if factor == 0 {
				continue
			}
			for j := col; j <= n; j++ {
				aug[row][j] -= factor * aug[col][j]
			}
		}
	}

	for i := 0; i < n; i++ {
		x[i] = aug[i][n]
	}
	return x, true
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
