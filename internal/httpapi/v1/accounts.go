// Account handlers: create, list, get, ledger, deactivate.
package v1

import (
	"net/http"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func accountIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, "invalid account id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) postAccount(w http.ResponseWriter, r *http.Request) {
	currency, ok := r.Context().Value(ctxKeyPostAccount).(string)
	if !ok {
		writeErr(w, http.StatusInternalServerError, "validated request missing", "internal")
		return
	}
	acc, err := s.accounts.Create(r.Context(), userIDFrom(r), currency)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	accountsCreatedTotal.Inc()
	toJSON(w, http.StatusCreated, toAccountResponse(acc))
}

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	accs, err := s.accounts.List(r.Context(), userIDFrom(r))
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	out := make([]accountResponse, 0, len(accs))
	for _, a := range accs {
		out = append(out, toAccountResponse(a))
	}
	toJSON(w, http.StatusOK, out)
}

// getAccount handles GET /v1/accounts/{id}
func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := accountIDParam(w, r)
	if !ok {
		return
	}
	acc, err := s.accounts.Get(r.Context(), userIDFrom(r), id)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toAccountResponse(acc))
}

// getAccountLedger handles GET /v1/accounts/{id}/ledger
func (s *Server) getAccountLedger(w http.ResponseWriter, r *http.Request) {
	id, ok := accountIDParam(w, r)
	if !ok {
		return
	}
	h, err := s.accounts.History(r.Context(), userIDFrom(r), id)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	resp := accountLedgerResponse{
		Account:        toAccountResponse(h.Account),
		Transfers:      make([]transferResponse, 0, len(h.Transfers)),
		DerivedBalance: h.Derived.String(),
		Consistent:     h.Consistent,
	}
	for _, leg := range h.Transfers {
		resp.Transfers = append(resp.Transfers, toTransferResponse(leg))
	}
	toJSON(w, http.StatusOK, resp)
}

// deleteAccount handles DELETE /v1/accounts/{id}. A nonzero balance answers 409.
func (s *Server) deleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := accountIDParam(w, r)
	if !ok {
		return
	}
	if err := s.accounts.Delete(r.Context(), userIDFrom(r), id); err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
