package ml

import "math"

const tau = 1e-12

// smoSolver minimises the C-SVC dual
//
//	1/2 a'Qa - e'a  subject to  0 <= a_i <= C, y'a = 0
//
// with Q_ij = y_i y_j K(x_i, x_j), using maximal-violating-pair selection
// with second order information. The kernel matrix is held in full.
type smoSolver struct {
	n     int
	y     []float64
	c     float64
	eps   float64
	k     [][]float64
	alpha []float64
	grad  []float64
}

func solveSVC(features [][]float64, y []float64, gamma float64, params SVCParams) *SVC {
	n := len(features)
	k := make([][]float64, n)
	for i := range k {
		k[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		k[i][i] = 1
		for j := i + 1; j < n; j++ {
			v := rbf(features[i], features[j], gamma)
			k[i][j] = v
			k[j][i] = v
		}
	}

	s := &smoSolver{
		n:     n,
		y:     y,
		c:     params.C,
		eps:   params.Tolerance,
		k:     k,
		alpha: make([]float64, n),
		grad:  make([]float64, n),
	}
	for i := range s.grad {
		s.grad[i] = -1
	}

	maxIter := params.MaxIter
	if maxIter <= 0 {
		maxIter = max(10000000, 100*n)
	}
	for iter := 0; iter < maxIter; iter++ {
		i, j, ok := s.selectWorkingSet()
		if !ok {
			break
		}
		s.update(i, j)
	}

	model := &SVC{
		Gamma:     gamma,
		C:         params.C,
		Intercept: -s.rho(),
	}
	for i, a := range s.alpha {
		if a > 0 {
			sv := make([]float64, len(features[i]))
			copy(sv, features[i])
			model.SupportVectors = append(model.SupportVectors, sv)
			model.DualCoef = append(model.DualCoef, a*y[i])
		}
	}
	return model
}

func (s *smoSolver) q(i, j int) float64 {
	return s.y[i] * s.y[j] * s.k[i][j]
}

func (s *smoSolver) atUpper(i int) bool { return s.alpha[i] >= s.c }
func (s *smoSolver) atLower(i int) bool { return s.alpha[i] <= 0 }

func (s *smoSolver) selectWorkingSet() (int, int, bool) {
	gmax := math.Inf(-1)
	gmax2 := math.Inf(-1)
	i := -1
	for t := 0; t < s.n; t++ {
		if s.y[t] > 0 {
			if !s.atUpper(t) && -s.grad[t] >= gmax {
				gmax = -s.grad[t]
				i = t
			}
		} else if !s.atLower(t) && s.grad[t] >= gmax {
			gmax = s.grad[t]
			i = t
		}
	}
	if i < 0 {
		return -1, -1, false
	}

	j := -1
	objMin := math.Inf(1)
	for t := 0; t < s.n; t++ {
		var gradDiff, quad float64
		if s.y[t] > 0 {
			if s.atLower(t) {
				continue
			}
			gradDiff = gmax + s.grad[t]
			if s.grad[t] >= gmax2 {
				gmax2 = s.grad[t]
			}
			quad = s.q(i, i) + s.q(t, t) - 2*s.y[i]*s.q(i, t)
		} else {
			if s.atUpper(t) {
				continue
			}
			gradDiff = gmax - s.grad[t]
			if -s.grad[t] >= gmax2 {
				gmax2 = -s.grad[t]
			}
			quad = s.q(i, i) + s.q(t, t) + 2*s.y[i]*s.q(i, t)
		}
		if gradDiff <= 0 {
			continue
		}
		if quad <= 0 {
			quad = tau
		}
		if obj := -(gradDiff * gradDiff) / quad; obj <= objMin {
			objMin = obj
			j = t
		}
	}

	if gmax+gmax2 < s.eps || j < 0 {
		return -1, -1, false
	}
	return i, j, true
}

func (s *smoSolver) update(i, j int) {
	c := s.c
	oldI, oldJ := s.alpha[i], s.alpha[j]

	if s.y[i] != s.y[j] {
		quad := s.q(i, i) + s.q(j, j) + 2*s.q(i, j)
		if quad <= 0 {
			quad = tau
		}
		delta := (-s.grad[i] - s.grad[j]) / quad
		diff := s.alpha[i] - s.alpha[j]
		s.alpha[i] += delta
		s.alpha[j] += delta
		if diff > 0 {
			if s.alpha[j] < 0 {
				s.alpha[j] = 0
				s.alpha[i] = diff
			}
		} else if s.alpha[i] < 0 {
			s.alpha[i] = 0
			s.alpha[j] = -diff
		}
		if diff > 0 {
			if s.alpha[i] > c {
				s.alpha[i] = c
				s.alpha[j] = c - diff
			}
		} else if s.alpha[j] > c {
			s.alpha[j] = c
			s.alpha[i] = c + diff
		}
	} else {
		quad := s.q(i, i) + s.q(j, j) - 2*s.q(i, j)
		if quad <= 0 {
			quad = tau
		}
		delta := (s.grad[i] - s.grad[j]) / quad
		sum := s.alpha[i] + s.alpha[j]
		s.alpha[i] -= delta
		s.alpha[j] += delta
		if sum > c {
			if s.alpha[i] > c {
				s.alpha[i] = c
				s.alpha[j] = sum - c
			}
		} else if s.alpha[j] < 0 {
			s.alpha[j] = 0
			s.alpha[i] = sum
		}
		if sum > c {
			if s.alpha[j] > c {
				s.alpha[j] = c
				s.alpha[i] = sum - c
			}
		} else if s.alpha[i] < 0 {
			s.alpha[i] = 0
			s.alpha[j] = sum
		}
	}

	dI := s.alpha[i] - oldI
	dJ := s.alpha[j] - oldJ
	for t := 0; t < s.n; t++ {
		s.grad[t] += s.q(i, t)*dI + s.q(j, t)*dJ
	}
}

// rho is the negated bias, averaged over free support vectors when any exist.
func (s *smoSolver) rho() float64 {
	ub := math.Inf(1)
	lb := math.Inf(-1)
	free := 0
	sumFree := 0.0
	for i := 0; i < s.n; i++ {
		yG := s.y[i] * s.grad[i]
		switch {
		case s.atUpper(i):
			if s.y[i] < 0 {
				ub = math.Min(ub, yG)
			} else {
				lb = math.Max(lb, yG)
			}
		case s.atLower(i):
			if s.y[i] > 0 {
				ub = math.Min(ub, yG)
			} else {
				lb = math.Max(lb, yG)
			}
		default:
			free++
			sumFree += yG
		}
	}
	if free > 0 {
		return sumFree / float64(free)
	}
	return (ub + lb) / 2
}
