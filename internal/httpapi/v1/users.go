package v1

import (
	"net/http"

	"github.com/tinoosan/pocketledger/internal/service/user"
)

func (s *Server) postUser(w http.ResponseWriter, r *http.Request) {
	req, ok := r.Context().Value(ctxKeyPostUser).(postUserRequest)
	if !ok {
		writeErr(w, http.StatusInternalServerError, "validated request missing", "internal")
		return
	}
	u, err := s.users.Register(r.Context(), user.Registration{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
	})
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusCreated, toUserResponse(u))
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	req, ok := r.Context().Value(ctxKeyLogin).(loginRequest)
	if !ok {
		writeErr(w, http.StatusInternalServerError, "validated request missing", "internal")
		return
	}
	tok, err := s.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusCreated, tokenResponse{Token: tok.Value, Expire: tok.Expire})
}

// deleteMe deactivates the authenticated user.
func (s *Server) deleteMe(w http.ResponseWriter, r *http.Request) {
	if err := s.users.Deactivate(r.Context(), userIDFrom(r)); err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
