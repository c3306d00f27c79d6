package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/tinoosan/pocketledger/internal/ledger"
)

type ctxKey string

const (
	ctxKeyPostAccount      ctxKey = "validatedPostAccount"
	ctxKeyPosting          ctxKey = "validatedPosting"
	ctxKeyListTransactions ctxKey = "validatedListTransactions"
	ctxKeyPostUser         ctxKey = "validatedPostUser"
	ctxKeyLogin            ctxKey = "validatedLogin"
)

// decodeJSON enforces the content type and rejects unknown fields.
// It writes the error response itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if !requireJSON(w, r) {
		return false
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// validatePostAccount parses POST /accounts and stores the normalized currency.
func (s *Server) validatePostAccount() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req postAccountRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			currency, err := ledger.NormalizeCurrency(req.Currency)
			if err != nil {
				s.writeServiceErr(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyPostAccount, currency)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validateIncome parses POST /transactions/income.
func (s *Server) validateIncome() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req postIncomeRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			in, ok := s.postingFrom(w, r, req.Amount, req.Currency)
			if !ok {
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyPosting, in)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validatePay parses POST /transactions/pay.
func (s *Server) validatePay() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req postPayRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			in, ok := s.postingFrom(w, r, req.Amount, req.Currency)
			if !ok {
				return
			}
			if strings.TrimSpace(req.Category) == "" {
				badRequest(w, "category is required")
				return
			}
			in.Category = req.Category
			ctx := context.WithValue(r.Context(), ctxKeyPosting, in)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// postingFrom checks the request shape only; amount and currency rules are
// enforced again by the engine.
func (s *Server) postingFrom(w http.ResponseWriter, r *http.Request, amount json.Number, currency string) (postingInput, bool) {
	if amount == "" {
		badRequest(w, "amount is required")
		return postingInput{}, false
	}
	amt, err := ledger.ParseAmount(amount.String())
	if err != nil {
		s.writeServiceErr(w, r, err)
		return postingInput{}, false
	}
	if strings.TrimSpace(currency) == "" {
		badRequest(w, "currency is required")
		return postingInput{}, false
	}
	return postingInput{Amount: amt, Currency: currency}, true
}

// validateListTransactions parses GET /transactions?currency=.
func (s *Server) validateListTransactions() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := listTransactionsQuery{}
			if raw := r.URL.Query().Get("currency"); raw != "" {
				c, err := ledger.NormalizeCurrency(raw)
				if err != nil {
					s.writeServiceErr(w, r, err)
					return
				}
				q.Currency = c
			}
			ctx := context.WithValue(r.Context(), ctxKeyListTransactions, q)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validatePostUser parses POST /users.
func (s *Server) validatePostUser() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req postUserRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			if req.Email == "" || req.Password == "" {
				badRequest(w, "email and password are required")
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyPostUser, req)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validateLogin parses POST /users/login.
func (s *Server) validateLogin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req loginRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			if req.Email == "" || req.Password == "" {
				badRequest(w, "email and password are required")
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyLogin, req)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
