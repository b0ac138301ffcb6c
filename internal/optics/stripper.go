package optics

import "math"

// BaronWeights returns the relative macro weights of the post-stripper
// charge states from the empirical charge distribution of a carbon foil.
// beta is the incoming reference velocity ratio, a the ion mass number, p
// its proton number, and chargeStates the new charge-to-mass ratios (e/u).
// The weights sum to one; the caller rescales to the incoming total.
func BaronWeights(beta, a, p float64, chargeStates []float64) []float64 {
	q1 := p * (1 - math.Exp(-83.275*beta/math.Pow(a, 0.447)))
	qav := q1 * (1 - math.Exp(-12.905+0.2124*p-0.00122*p*p))
	y := q1 / p
	d := math.Sqrt(q1 * (0.07535 + 0.19*y - 0.2654*y*y))

	weights := make([]float64, len(chargeStates))
	sum := 0.0
	for i, z := range chargeStates {
		q := z * a
		w := math.Exp(-(q-qav)*(q-qav)/(2*d*d)) / (d * math.Sqrt(2*math.Pi))
		weights[i] = w
		sum += w
	}
	if sum > 0 {
		for i := range weights {
			weights[i] /= sum
		}
	}
	return weights
}
