package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"copyright/internal/ledger/ports"
	id "copyright/pkg/domain"
	"copyright/pkg/platform/httputil"
)

func (h *Handler) handleGetPerson(w http.ResponseWriter, r *http.Request) {
	key, err := id.ParsePersonID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	record, err := ports.Lookup(r.Context(), h.registry.Persons(), key, "person")
	h.respond(w, r, record, err)
}

func (h *Handler) handleGetOrganization(w http.ResponseWriter, r *http.Request) {
	key, err := id.ParseOrganizationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	record, err := ports.Lookup(r.Context(), h.registry.Organizations(), key, "organization")
	h.respond(w, r, record, err)
}

func (h *Handler) handleGetSong(w http.ResponseWriter, r *http.Request) {
	key, err := id.ParseSongID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	record, err := ports.Lookup(r.Context(), h.registry.Songs(), key, "song")
	h.respond(w, r, record, err)
}

func (h *Handler) handleGetAgreement(w http.ResponseWriter, r *http.Request) {
	key, err := id.ParseAgreementID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	record, err := ports.Lookup(r.Context(), h.registry.Agreements(), key, "song selling agreement")
	h.respond(w, r, record, err)
}

func (h *Handler) handleGetLicensedSong(w http.ResponseWriter, r *http.Request) {
	key, err := id.ParseLicensedSongID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	record, err := ports.Lookup(r.Context(), h.registry.LicensedSongs(), key, "licensed song")
	h.respond(w, r, record, err)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, record any, err error) {
	if err != nil {
		h.reject(r.Context(), w, "registry read failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}
