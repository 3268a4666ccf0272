package ml

import (
	"math"
	"math/rand"
)

// crossValidatedDecisions produces an out-of-fold decision value for every
// training row. Fitting the sigmoid on in-sample decisions would make the
// probabilities overconfident.
func crossValidatedDecisions(features [][]float64, y []float64, gamma float64, params SVCParams) []float64 {
	n := len(features)
	folds := params.Folds
	if folds > n {
		folds = n
	}
	rnd := rand.New(rand.NewSource(params.Seed))
	perm := rnd.Perm(n)

	inner := params
	inner.Folds = 0
	decisions := make([]float64, n)
	for f := 0; f < folds; f++ {
		begin := f * n / folds
		end := (f + 1) * n / folds

		trainX := make([][]float64, 0, n-(end-begin))
		trainY := make([]float64, 0, n-(end-begin))
		var positives, negatives int
		for _, idx := range perm[:begin] {
			trainX = append(trainX, features[idx])
			trainY = append(trainY, y[idx])
		}
		for _, idx := range perm[end:] {
			trainX = append(trainX, features[idx])
			trainY = append(trainY, y[idx])
		}
		for _, label := range trainY {
			if label > 0 {
				positives++
			} else {
				negatives++
			}
		}

		switch {
		case positives == 0 && negatives == 0:
			for _, idx := range perm[begin:end] {
				decisions[idx] = 0
			}
		case negatives == 0:
			for _, idx := range perm[begin:end] {
				decisions[idx] = 1
			}
		case positives == 0:
			for _, idx := range perm[begin:end] {
				decisions[idx] = -1
			}
		default:
			sub := solveSVC(trainX, trainY, gamma, inner)
			for _, idx := range perm[begin:end] {
				decisions[idx] = sub.Decision(features[idx])
			}
		}
	}
	return decisions
}

// fitSigmoid fits P(y=+1|f) = 1 / (1 + exp(A*f + B)) by Newton's method with
// backtracking line search, using the regularised targets of Platt (2000)
// as refined by Lin, Lin and Weng (2007).
func fitSigmoid(decisions, y []float64) (float64, float64) {
	const (
		maxIter = 100
		minStep = 1e-10
		sigma   = 1e-12
		eps     = 1e-5
	)

	var prior1, prior0 float64
	for _, label := range y {
		if label > 0 {
			prior1++
		} else {
			prior0++
		}
	}
	hiTarget := (prior1 + 1) / (prior1 + 2)
	loTarget := 1 / (prior0 + 2)
	t := make([]float64, len(y))
	for i, label := range y {
		if label > 0 {
			t[i] = hiTarget
		} else {
			t[i] = loTarget
		}
	}

	objective := func(a, b float64) float64 {
		fval := 0.0
		for i, f := range decisions {
			fApB := f*a + b
			if fApB >= 0 {
				fval += t[i]*fApB + math.Log1p(math.Exp(-fApB))
			} else {
				fval += (t[i]-1)*fApB + math.Log1p(math.Exp(fApB))
			}
		}
		return fval
	}

	a := 0.0
	b := math.Log((prior0 + 1) / (prior1 + 1))
	fval := objective(a, b)

	for iter := 0; iter < maxIter; iter++ {
		h11, h22, h21 := sigma, sigma, 0.0
		g1, g2 := 0.0, 0.0
		for i, f := range decisions {
			fApB := f*a + b
			var p, q float64
			if fApB >= 0 {
				e := math.Exp(-fApB)
				p = e / (1 + e)
				q = 1 / (1 + e)
			} else {
				e := math.Exp(fApB)
				p = 1 / (1 + e)
				q = e / (1 + e)
			}
			d2 := p * q
			h11 += f * f * d2
			h22 += d2
			h21 += f * d2
			d1 := t[i] - p
			g1 += f * d1
			g2 += d1
		}
		if math.Abs(g1) < eps && math.Abs(g2) < eps {
			break
		}

		det := h11*h22 - h21*h21
		dA := -(h22*g1 - h21*g2) / det
		dB := -(-h21*g1 + h11*g2) / det
		gd := g1*dA + g2*dB

		step := 1.0
		for step >= minStep {
			newA := a + step*dA
			newB := b + step*dB
			if newF := objective(newA, newB); newF < fval+0.0001*step*gd {
				a, b, fval = newA, newB, newF
				break
			}
			step /= 2
		}
		if step < minStep {
			break
		}
	}
	return a, b
}

func sigmoidPredict(decision, a, b float64) float64 {
	fApB := decision*a + b
	if fApB >= 0 {
		e := math.Exp(-fApB)
		return e / (1 + e)
	}
	return 1 / (1 + math.Exp(fApB))
}
