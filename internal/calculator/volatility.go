package calculator

import (
	"math"

	"RegimeSentinel/internal/model"
)

// TradingDaysPerYear annualizes daily volatility.
const TradingDaysPerYear = 252

// DailyReturns computes close-to-close simple returns. Pairs with a zero
// previous close are skipped.
func DailyReturns(s model.Series) []float64 {
	closes := extractCloses(s)
	if len(closes) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		returns = append(returns, (closes[i]-closes[i-1])/closes[i-1])
	}
	return returns
}

// StdDev is the sample standard deviation (n-1 denominator).
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)-1))
}

// AnnualizedVol is stdev of the last n daily returns scaled by sqrt(252).
func AnnualizedVol(s model.Series, n int) Result {
	if n < 2 {
		return Insufficient("window %d too short", n)
	}
	returns := DailyReturns(s)
	if len(returns) < n {
		return Insufficient("%s: %d returns, need %d", s.Symbol, len(returns), n)
	}
	return Available(StdDev(returns[len(returns)-n:]) * math.Sqrt(TradingDaysPerYear))
}
