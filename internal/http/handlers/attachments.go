package handlers

import (
	"net/http"

	"github.com/pribylovaa/go-forum/internal/http/apierrors"
)

func (h *Handlers) PresignAttachment(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var in PresignRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	info, err := h.Forum.PresignAttachment(r.Context(), p, in.ContentType, in.Size)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, presignFromModel(*info))
}
