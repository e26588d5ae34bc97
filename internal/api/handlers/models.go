package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nikhilbhutani/historyhub/internal/llm"
)

type ModelsHandler struct {
	catalog *llm.Catalog
}

func NewModelsHandler(catalog *llm.Catalog) *ModelsHandler {
	return &ModelsHandler{catalog: catalog}
}

// List returns the catalog, optionally narrowed by ?provider= and ?type=.
func (h *ModelsHandler) List(w http.ResponseWriter, r *http.Request) {
	provider := r.URL.Query().Get("provider")
	typ := r.URL.Query().Get("type")

	models := []llm.Model{}
	for _, m := range h.catalog.List() {
		if provider != "" && m.Provider != provider {
			continue
		}
		if typ != "" && m.Type != typ {
			continue
		}
		models = append(models, m)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"models": models})
}

func (h *ModelsHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, ok := h.catalog.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "model not found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}
