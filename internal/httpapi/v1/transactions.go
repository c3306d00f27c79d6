package v1

import (
	"net/http"

	"github.com/tinoosan/pocketledger/internal/ledger"
)

func postingFromContext(w http.ResponseWriter, r *http.Request) (postingInput, bool) {
	in, ok := r.Context().Value(ctxKeyPosting).(postingInput)
	if !ok {
		writeErr(w, http.StatusInternalServerError, "validated request missing", "internal")
	}
	return in, ok
}

func (s *Server) postIncome(w http.ResponseWriter, r *http.Request) {
	in, ok := postingFromContext(w, r)
	if !ok {
		return
	}
	t, err := s.transactions.Income(r.Context(), userIDFrom(r), in.Amount, in.Currency)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	transactionsTotal.WithLabelValues(string(ledger.TransactionIncome)).Inc()
	toJSON(w, http.StatusCreated, toTransactionResponse(t))
}

func (s *Server) postPay(w http.ResponseWriter, r *http.Request) {
	in, ok := postingFromContext(w, r)
	if !ok {
		return
	}
	t, err := s.transactions.Pay(r.Context(), userIDFrom(r), in.Category, in.Amount, in.Currency)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	transactionsTotal.WithLabelValues(string(ledger.TransactionPay)).Inc()
	toJSON(w, http.StatusCreated, toTransactionResponse(t))
}

// listTransactions handles GET /v1/transactions?currency=, oldest first.
func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	q, ok := r.Context().Value(ctxKeyListTransactions).(listTransactionsQuery)
	if !ok {
		writeErr(w, http.StatusInternalServerError, "validated query missing", "internal")
		return
	}
	list, err := s.transactions.List(r.Context(), userIDFrom(r), q.Currency)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	out := make([]transactionResponse, 0, len(list))
	for _, t := range list {
		out = append(out, toTransactionResponse(t))
	}
	toJSON(w, http.StatusOK, out)
}
