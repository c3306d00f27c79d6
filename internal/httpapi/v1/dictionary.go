package v1

import (
	"net/http"

	"github.com/tinoosan/pocketledger/internal/dictionary"
)

// GET /v1/dictionary/categories?group=
func (s *Server) getCategoriesDictionary(w http.ResponseWriter, r *http.Request) {
	out := struct {
		Items []dictionary.CategoryDef `json:"items"`
	}{Items: dictionary.Categories(r.URL.Query().Get("group"))}
	toJSON(w, http.StatusOK, out)
}
