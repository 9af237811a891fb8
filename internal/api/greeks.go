package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/qodeinvest/qode-engine/internal/greeks"
	"github.com/qodeinvest/qode-engine/internal/market"
)

type greeksRequest struct {
	Type         string  `json:"type"`
	Spot         float64 `json:"spot"`
	Strike       float64 `json:"strike"`
	Rate         float64 `json:"rate"`
	TimeToExpiry float64 `json:"time_to_expiry"`
	Volatility   float64 `json:"volatility"`

	// MarketPrice is required by /greeks/implied-vol only.
	MarketPrice float64 `json:"market_price,omitempty"`
}

// optionType validates the request's contract type.
func (req greeksRequest) optionType() (market.OptionType, bool) {
	typ := market.OptionType(req.Type)
	return typ, typ == market.OptionCall || typ == market.OptionPut
}

func (req greeksRequest) inputs() greeks.Inputs {
	return greeks.Inputs{
		Spot:         req.Spot,
		Strike:       req.Strike,
		Rate:         req.Rate,
		TimeToExpiry: req.TimeToExpiry,
		Volatility:   req.Volatility,
	}
}

// handleComputeGreeks prices a European option and returns its sensitivities.
func (s *Server) handleComputeGreeks(w http.ResponseWriter, r *http.Request) {
	var req greeksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	typ, ok := req.optionType()
	if !ok {
		writeBadRequest(w, "type must be call or put")
		return
	}

	result, err := greeks.Compute(typ, req.inputs())
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleImpliedVol solves for the volatility implied by a market price.
func (s *Server) handleImpliedVol(w http.ResponseWriter, r *http.Request) {
	var req greeksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	typ, ok := req.optionType()
	if !ok {
		writeBadRequest(w, "type must be call or put")
		return
	}
	if req.MarketPrice <= 0 {
		writeBadRequest(w, "market_price must be positive")
		return
	}

	iv, err := greeks.ImpliedVolatility(typ, req.inputs(), req.MarketPrice)
	if err != nil {
		if errors.Is(err, greeks.ErrNoSolution) {
			writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation,
				"no volatility reproduces the given market price")
			return
		}
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]float64{
		"implied_volatility": iv,
	})
}
