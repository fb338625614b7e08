package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"travelai/internal/core"
	"travelai/internal/log"
	"travelai/internal/settlement"
)

type allocationsRequest struct {
	UserIDs []string `json:"user_ids"`
}

type priceRequest struct {
	Price *core.ExactAmount `json:"price"`
}

func (s *Server) handleAddParticipant(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	var p core.Participant
	if err := DecodeJSON(r, &p); err != nil {
		requestError(r, err, log.OpCreate).Write(w)
		return
	}
	p.UserID = sanitizeInput(p.UserID)
	p.DisplayName = sanitizeInput(p.DisplayName)
	if err := s.svc.AddParticipant(r.Context(), sessionID, p); err != nil {
		ServiceErrorResponse(r, err, log.OpCreate).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(p).Write(w)
}

func (s *Server) handleRemoveParticipant(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	userID := chi.URLParam(r, "userID")
	if err := s.svc.RemoveParticipant(r.Context(), sessionID, userID); err != nil {
		ServiceErrorResponse(r, err, log.OpDelete).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

// handleRecordExpenditure stores an expenditure and answers with the stored
// record and its distribution.
func (s *Server) handleRecordExpenditure(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	locale, err := ParseLocale(r.URL.Query(), s.defaultLocale)
	if err != nil {
		ServiceErrorResponse(r, err, log.OpCreate).Write(w)
		return
	}

	var e core.Expenditure
	if err := DecodeJSON(r, &e); err != nil {
		requestError(r, err, log.OpCreate).Write(w)
		return
	}
	if e.Category, err = core.ParseCategory(string(e.Category)); err != nil {
		ServiceErrorResponse(r, err, log.OpCreate).Write(w)
		return
	}
	e.PayerUserID = strings.TrimSpace(e.PayerUserID)

	stored, dist, err := s.svc.RecordExpenditure(r.Context(), sessionID, e)
	if err != nil {
		ServiceErrorResponse(r, err, log.OpCreate).Write(w)
		return
	}
	view, err := expenditureDistribution(presenter{locale: locale, currency: stored.CurrencyCode}, stored, dist)
	if err != nil {
		ServiceErrorResponse(r, err, log.OpCreate).Write(w)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Body(expenditureView{Expenditure: stored, Distribution: view}).
		Write(w)
}

func (s *Server) handleDeleteExpenditure(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	expenditureID := chi.URLParam(r, "expenditureID")
	if err := s.svc.DeleteExpenditure(r.Context(), sessionID, expenditureID); err != nil {
		ServiceErrorResponse(r, err, log.OpDelete).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleDistribution(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	expenditureID := chi.URLParam(r, "expenditureID")
	locale, err := ParseLocale(r.URL.Query(), s.defaultLocale)
	if err != nil {
		ServiceErrorResponse(r, err, log.OpRead).Write(w)
		return
	}

	e, dist, err := s.svc.Distribution(r.Context(), sessionID, expenditureID)
	if err != nil {
		ServiceErrorResponse(r, err, log.OpRead).Write(w)
		return
	}
	view, err := expenditureDistribution(presenter{locale: locale, currency: e.CurrencyCode}, e, dist)
	if err != nil {
		ServiceErrorResponse(r, err, log.OpRead).Write(w)
		return
	}
	NewJSONResponse().Body(view).Write(w)
}

func (s *Server) handleSetAllocations(w http.ResponseWriter, r *http.Request) {
	var req allocationsRequest
	if err := DecodeJSON(r, &req); err != nil {
		requestError(r, err, log.OpUpdate).Write(w)
		return
	}
	ids := make([]string, 0, len(req.UserIDs))
	for _, id := range req.UserIDs {
		ids = append(ids, sanitizeInput(id))
	}
	s.editLine(w, r, func(sessionID, expenditureID, itemID string) (settlement.Distribution, error) {
		return s.svc.SetAllocations(r.Context(), sessionID, expenditureID, itemID, ids)
	})
}

func (s *Server) handleSetLinePrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := DecodeJSON(r, &req); err != nil {
		requestError(r, err, log.OpUpdate).Write(w)
		return
	}
	if req.Price == nil {
		BadRequestError("price is required").Write(w)
		return
	}
	s.editLine(w, r, func(sessionID, expenditureID, itemID string) (settlement.Distribution, error) {
		return s.svc.SetLinePrice(r.Context(), sessionID, expenditureID, itemID, *req.Price)
	})
}

// editLine runs one line-item edit and answers with the recomputed
// distribution of the edited expenditure.
func (s *Server) editLine(w http.ResponseWriter, r *http.Request, edit func(sessionID, expenditureID, itemID string) (settlement.Distribution, error)) {
	sessionID := chi.URLParam(r, "sessionID")
	expenditureID := chi.URLParam(r, "expenditureID")
	itemID := chi.URLParam(r, "itemID")
	locale, err := ParseLocale(r.URL.Query(), s.defaultLocale)
	if err != nil {
		ServiceErrorResponse(r, err, log.OpUpdate).Write(w)
		return
	}

	dist, err := edit(sessionID, expenditureID, itemID)
	if err != nil {
		ServiceErrorResponse(r, err, log.OpUpdate).Write(w)
		return
	}
	e, _, err := s.svc.Distribution(r.Context(), sessionID, expenditureID)
	if err != nil {
		ServiceErrorResponse(r, err, log.OpUpdate).Write(w)
		return
	}
	view, err := expenditureDistribution(presenter{locale: locale, currency: e.CurrencyCode}, e, dist)
	if err != nil {
		ServiceErrorResponse(r, err, log.OpUpdate).Write(w)
		return
	}
	NewJSONResponse().Body(view).Write(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	query := r.URL.Query()
	locale, err := ParseLocale(query, s.defaultLocale)
	if err != nil {
		ServiceErrorResponse(r, err, log.OpSummarize).Write(w)
		return
	}
	categories, err := ParseCategories(query)
	if err != nil {
		ServiceErrorResponse(r, err, log.OpSummarize).Write(w)
		return
	}

	sum, err := s.svc.Summary(r.Context(), sessionID, categories)
	if err != nil {
		ServiceErrorResponse(r, err, log.OpSummarize).Write(w)
		return
	}
	view, err := presenter{locale: locale, currency: sum.CurrencyCode}.summary(sum)
	if err != nil {
		ServiceErrorResponse(r, err, log.OpSummarize).Write(w)
		return
	}
	NewJSONResponse().Body(view).Write(w)
}

func expenditureDistribution(p presenter, e core.Expenditure, dist settlement.Distribution) (distributionView, error) {
	view, err := p.distribution(dist)
	if err != nil {
		return distributionView{}, err
	}
	view.ExpenditureID = e.ID
	if e.HasAllocations() {
		unassigned, err := p.amount(e.UnassignedTotal())
		if err != nil {
			return distributionView{}, err
		}
		view.Unassigned = &unassigned
	}
	return view, nil
}
