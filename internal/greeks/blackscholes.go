package greeks

import (
	"errors"
	"fmt"
	"math"

	"github.com/qodeinvest/qode-engine/internal/market"
)

// Sentinel errors for pricing inputs.
var (
	ErrInvalidInput = errors.New("invalid pricing input")
	ErrNoSolution   = errors.New("implied volatility has no solution in range")
)

// Inputs are the Black-Scholes model parameters.
type Inputs struct {
	// Spot is the current underlying price.
	Spot float64 `json:"spot"`

	// Strike is the option strike price.
	Strike float64 `json:"strike"`

	// Rate is the annualised risk-free rate (0.05 = 5%).
	Rate float64 `json:"rate"`

	// TimeToExpiry is the time to expiry in years.
	TimeToExpiry float64 `json:"time_to_expiry"`

	// Volatility is the annualised volatility (0.2 = 20%).
	Volatility float64 `json:"volatility"`
}

// Greeks holds the option price and its sensitivities.
type Greeks struct {
	Price float64 `json:"price"`
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	// Theta is per calendar day.
	Theta float64 `json:"theta"`
	// Vega is per percentage point of volatility.
	Vega float64 `json:"vega"`
	// Rho is per percentage point of the risk-free rate.
	Rho float64 `json:"rho"`
}

// validate rejects inputs outside the model's domain.
func (in Inputs) validate() error {
	switch {
	case in.Spot <= 0:
		return fmt.Errorf("%w: spot must be positive", ErrInvalidInput)
	case in.Strike <= 0:
		return fmt.Errorf("%w: strike must be positive", ErrInvalidInput)
	case in.TimeToExpiry <= 0:
		return fmt.Errorf("%w: time to expiry must be positive", ErrInvalidInput)
	case in.Volatility <= 0:
		return fmt.Errorf("%w: volatility must be positive", ErrInvalidInput)
	}
	return nil
}

// d1d2 computes the standard Black-Scholes intermediates.
func (in Inputs) d1d2() (d1, d2 float64) {
	volSqrtT := in.Volatility * math.Sqrt(in.TimeToExpiry)
	d1 = (math.Log(in.Spot/in.Strike) + (in.Rate+0.5*in.Volatility*in.Volatility)*in.TimeToExpiry) / volSqrtT
	d2 = d1 - volSqrtT
	return d1, d2
}

// Price returns the Black-Scholes price for one option type.
func Price(typ market.OptionType, in Inputs) (float64, error) {
	if err := in.validate(); err != nil {
		return 0, err
	}

	d1, d2 := in.d1d2()
	discount := math.Exp(-in.Rate * in.TimeToExpiry)

	if typ == market.OptionCall {
		return in.Spot*normCDF(d1) - in.Strike*discount*normCDF(d2), nil
	}
	return in.Strike*discount*normCDF(-d2) - in.Spot*normCDF(-d1), nil
}

// Compute returns the price and all sensitivities for one option type.
func Compute(typ market.OptionType, in Inputs) (*Greeks, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	d1, d2 := in.d1d2()
	sqrtT := math.Sqrt(in.TimeToExpiry)
	discount := math.Exp(-in.Rate * in.TimeToExpiry)
	pdfD1 := normPDF(d1)

	g := &Greeks{
		Gamma: pdfD1 / (in.Spot * in.Volatility * sqrtT),
		Vega:  in.Spot * pdfD1 * sqrtT / 100,
	}

	decay := -in.Spot * pdfD1 * in.Volatility / (2 * sqrtT)

	if typ == market.OptionCall {
		g.Price = in.Spot*normCDF(d1) - in.Strike*discount*normCDF(d2)
		g.Delta = normCDF(d1)
		g.Theta = (decay - in.Rate*in.Strike*discount*normCDF(d2)) / 365
		g.Rho = in.Strike * in.TimeToExpiry * discount * normCDF(d2) / 100
	} else {
		g.Price = in.Strike*discount*normCDF(-d2) - in.Spot*normCDF(-d1)
		g.Delta = normCDF(d1) - 1
		g.Theta = (decay + in.Rate*in.Strike*discount*normCDF(-d2)) / 365
		g.Rho = -in.Strike * in.TimeToExpiry * discount * normCDF(-d2) / 100
	}

	return g, nil
}

// Implied volatility search bounds and termination.
const (
	ivLow       = 0.001
	ivHigh      = 5.0
	ivTolerance = 1e-8
	ivMaxIter   = 200
)

// ImpliedVolatility inverts the model for the volatility that reproduces
// a market price, using bisection over [0.001, 5.0].
func ImpliedVolatility(typ market.OptionType, in Inputs, marketPrice float64) (float64, error) {
	if marketPrice <= 0 {
		return 0, fmt.Errorf("%w: market price must be positive", ErrInvalidInput)
	}

	priceAt := func(vol float64) (float64, error) {
		trial := in
		trial.Volatility = vol
		return Price(typ, trial)
	}

	lo, hi := ivLow, ivHigh
	pLo, err := priceAt(lo)
	if err != nil {
		return 0, err
	}
	pHi, err := priceAt(hi)
	if err != nil {
		return 0, err
	}

	fLo, fHi := pLo-marketPrice, pHi-marketPrice
	if fLo*fHi > 0 {
		return 0, ErrNoSolution
	}

	for range ivMaxIter {
		mid := (lo + hi) / 2
		pMid, err := priceAt(mid)
		if err != nil {
			return 0, err
		}
		fMid := pMid - marketPrice

		if math.Abs(fMid) < ivTolerance || hi-lo < ivTolerance {
			return mid, nil
		}

		if fLo*fMid < 0 {
			hi = mid
		} else {
			lo, fLo = mid, fMid
		}
	}

	return (lo + hi) / 2, nil
}

// normCDF is the standard normal cumulative distribution function.
func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// normPDF is the standard normal probability density function.
func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}
