package http

import (
	"fmt"
	"net/http"
	"strings"

	"travelai/internal/core"
	"travelai/internal/log"
	"travelai/internal/settlement"
)

type evenSplitRequest struct {
	Total        core.ExactAmount   `json:"total"`
	Currency     string             `json:"currency"`
	Participants []core.Participant `json:"participants"`
}

type itemizedSplitRequest struct {
	Currency     string             `json:"currency"`
	Participants []core.Participant `json:"participants"`
	LineItems    []core.LineItem    `json:"line_items"`
}

// handleEvenSplit computes a stateless even split of one total.
func (s *Server) handleEvenSplit(w http.ResponseWriter, r *http.Request) {
	var req evenSplitRequest
	if err := DecodeJSON(r, &req); err != nil {
		requestError(r, err, log.OpRecompute).Write(w)
		return
	}
	p, err := s.splitPresenter(r, req.Currency, req.Participants)
	if err != nil {
		ServiceErrorResponse(r, err, log.OpRecompute).Write(w)
		return
	}
	if req.Total.Sign() < 0 {
		UnprocessableEntityError(fmt.Sprintf("%v: negative total", core.ErrInvalidAmount)).Write(w)
		return
	}

	dist, err := settlement.EvenSplit(req.Total, req.Participants)
	if err != nil {
		ServiceErrorResponse(r, err, log.OpRecompute).Write(w)
		return
	}
	view, err := p.distribution(dist)
	if err != nil {
		ServiceErrorResponse(r, err, log.OpRecompute).Write(w)
		return
	}
	NewJSONResponse().Body(view).Write(w)
}

// handleItemizedSplit computes a stateless itemized split. Lines without
// allocations are reported as unassigned.
func (s *Server) handleItemizedSplit(w http.ResponseWriter, r *http.Request) {
	var req itemizedSplitRequest
	if err := DecodeJSON(r, &req); err != nil {
		requestError(r, err, log.OpRecompute).Write(w)
		return
	}
	p, err := s.splitPresenter(r, req.Currency, req.Participants)
	if err != nil {
		ServiceErrorResponse(r, err, log.OpRecompute).Write(w)
		return
	}
	for _, li := range req.LineItems {
		if err := li.Validate(); err != nil {
			ServiceErrorResponse(r, err, log.OpRecompute).Write(w)
			return
		}
	}

	dist, err := settlement.ItemizedSplit(req.LineItems, req.Participants)
	if err != nil {
		ServiceErrorResponse(r, err, log.OpRecompute).Write(w)
		return
	}
	view, err := p.distribution(dist)
	if err != nil {
		ServiceErrorResponse(r, err, log.OpRecompute).Write(w)
		return
	}
	unassigned := core.Expenditure{LineItems: req.LineItems}.UnassignedTotal()
	if av, err := p.amount(unassigned); err == nil {
		view.Unassigned = &av
	}
	NewJSONResponse().Body(view).Write(w)
}

// splitPresenter validates the shared parts of a split request.
func (s *Server) splitPresenter(r *http.Request, currencyCode string, participants []core.Participant) (presenter, error) {
	locale, err := ParseLocale(r.URL.Query(), s.defaultLocale)
	if err != nil {
		return presenter{}, err
	}
	code := strings.ToUpper(strings.TrimSpace(currencyCode))
	if err := core.ValidateCurrencyCode(code); err != nil {
		return presenter{}, err
	}
	for _, p := range participants {
		if err := p.Validate(); err != nil {
			return presenter{}, err
		}
	}
	return presenter{locale: locale, currency: code}, nil
}
