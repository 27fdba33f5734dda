package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pribylovaa/go-forum/internal/http/apierrors"
)

func (h *Handlers) CreateChannel(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var in CreateChannelRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	ch, err := h.Forum.CreateChannel(r.Context(), p, in.Name, in.Description)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, channelFromModel(*ch))
}

func (h *Handlers) GetChannel(w http.ResponseWriter, r *http.Request) {
	ch, err := h.Forum.ChannelByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, channelFromModel(*ch))
}

func (h *Handlers) ListChannels(w http.ResponseWriter, r *http.Request) {
	list, err := h.Forum.ListChannels(r.Context())
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	out := ChannelsResponse{Channels: make([]ChannelResponse, 0, len(list))}
	for _, c := range list {
		out.Channels = append(out.Channels, channelFromModel(c))
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) DeleteChannel(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	res, err := h.Forum.DeleteChannelCascade(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, CascadeResponse{Deleted: res.Deleted, Failed: res.Failed})
}
