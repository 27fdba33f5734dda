package handlers

import (
	"net/http"

	"github.com/pribylovaa/go-forum/internal/http/apierrors"
	"github.com/pribylovaa/go-forum/internal/models"
)

// SearchMessages — ?query=&author_id=&sort_by=; sortBy принимается и в camelCase.
func (h *Handlers) SearchMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	sortBy := q.Get("sort_by")
	if sortBy == "" {
		sortBy = q.Get("sortBy")
	}
	authorID := q.Get("author_id")
	if authorID == "" {
		authorID = q.Get("authorId")
	}

	list, err := h.Forum.SearchMessages(r.Context(), models.SearchQuery{
		Query:    q.Get("query"),
		AuthorID: authorID,
		SortBy:   models.SortBy(sortBy),
	})
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messagesFromModel(list, viewer(r)))
}

func (h *Handlers) Suggestions(w http.ResponseWriter, r *http.Request) {
	list, err := h.Forum.Suggestions(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, SuggestionsResponse{Suggestions: list})
}

func (h *Handlers) UserStatistics(w http.ResponseWriter, r *http.Request) {
	list, err := h.Forum.UserStatistics(r.Context())
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, statsFromModel(list))
}
