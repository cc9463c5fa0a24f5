package repo

import "math"

// roundMoney rounds to 2 decimal places, half away from zero. Money values
// are stored and compared at 2-decimal precision everywhere, so every total
// must pass through here before persisting.
func roundMoney(amount float64) float64 {
	return math.Round(amount*100) / 100
}
