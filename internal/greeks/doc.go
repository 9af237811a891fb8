// Package greeks prices European options with the Black-Scholes model.
//
// Theta is quoted per calendar day, vega per percentage point of
// volatility and rho per percentage point of the risk-free rate,
// matching the conventions option traders expect on a dashboard.
// Implied volatility inverts the model with a bisection search over
// [0.001, 5.0].
package greeks
