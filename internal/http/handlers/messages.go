package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pribylovaa/go-forum/internal/http/apierrors"
	"github.com/pribylovaa/go-forum/internal/http/middleware"
	"github.com/pribylovaa/go-forum/internal/models"
	"github.com/pribylovaa/go-forum/internal/service"
)

func (h *Handlers) CreateMessage(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var in CreateMessageRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	msg, err := h.Forum.CreateMessage(r.Context(), service.CreateMessageInput{
		ChannelID:      chi.URLParam(r, "id"),
		AuthorID:       p.ID,
		Content:        in.Content,
		ParentID:       in.ParentID,
		AttachmentKey:  in.AttachmentKey,
		AttachmentName: in.AttachmentName,
	})
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, messageFromModel(*msg, p.ID))
}

func (h *Handlers) GetMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := h.Forum.MessageByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageFromModel(*msg, viewer(r)))
}

// ListChannelMessages — плоский список; ?nested=true собирает дерево.
func (h *Handlers) ListChannelMessages(w http.ResponseWriter, r *http.Request) {
	list, err := h.Forum.ListChannelMessages(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.writeList(w, r, list)
}

func (h *Handlers) ListReplies(w http.ResponseWriter, r *http.Request) {
	list, err := h.Forum.ListReplies(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.writeList(w, r, list)
}

func (h *Handlers) ListThread(w http.ResponseWriter, r *http.Request) {
	list, err := h.Forum.ListThread(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.writeList(w, r, list)
}

// Rate — голос ±1; без direction или с другим значением 400.
func (h *Handlers) Rate(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var in RateRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	switch {
	case in.Direction == nil:
		apierrors.WriteError(w, r, fmt.Errorf("%w: direction is required", apierrors.ErrBadRequest))
		return
	case *in.Direction != int(models.VoteUp) && *in.Direction != int(models.VoteDown):
		apierrors.WriteError(w, r, fmt.Errorf("%w: direction must be 1 or -1", apierrors.ErrBadRequest))
		return
	}

	res, err := h.Forum.Rate(r.Context(), chi.URLParam(r, "id"), p.ID, models.Vote(*in.Direction))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ratingFromModel(*res))
}

func (h *Handlers) ClearRating(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	res, err := h.Forum.ClearRating(r.Context(), chi.URLParam(r, "id"), p.ID)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ratingFromModel(*res))
}

func (h *Handlers) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	res, err := h.Forum.DeleteMessageCascade(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, CascadeResponse{Deleted: res.Deleted, Failed: res.Failed})
}

func (h *Handlers) writeList(w http.ResponseWriter, r *http.Request, list []models.MessageView) {
	if r.URL.Query().Get("nested") == "true" {
		writeJSON(w, http.StatusOK, nestedFromModel(list, viewer(r)))
		return
	}

	writeJSON(w, http.StatusOK, messagesFromModel(list, viewer(r)))
}

// viewer — id субъекта для user_rating.
func viewer(r *http.Request) string {
	p, _ := middleware.PrincipalFrom(r.Context())
	return p.ID
}
