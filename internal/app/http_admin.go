package app

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"diocese/api/internal/editor"
	"diocese/api/internal/rbac"
)

func (s *HTTPServer) adminRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(s.requireAction(rbac.ActionRead))
		r.Get("/contacts", s.handleListContacts)
		r.Get("/bishops-charge", s.handleListCharges)
		r.Get("/bishops-charge/{id}", s.handleGetCharge)
		r.Get("/bishops-charge/{id}/history", s.handleChargeHistory)
		r.Get("/bishops-charge/{id}/history/{hash}", s.handleChargeRevision)
		r.Get("/bishops-charge/{id}/export", s.handleExportCharge)
		r.Get("/templates", s.handleListTemplates)
		r.Get("/templates/{id}", s.handleGetTemplate)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireAction(rbac.ActionWrite))

		r.Post("/archdeaconries", s.handleCreateArchdeaconry)
		r.Put("/archdeaconries/{id}", s.handleUpdateArchdeaconry)
		r.Delete("/archdeaconries/{id}", s.handleDeleteArchdeaconry)

		r.Post("/parishes", s.handleCreateParish)
		r.Put("/parishes/{id}", s.handleUpdateParish)
		r.Delete("/parishes/{id}", s.handleDeleteParish)

		r.Post("/priests", s.handleCreatePriest)
		r.Put("/priests/{id}", s.handleUpdatePriest)
		r.Delete("/priests/{id}", s.handleDeletePriest)

		r.Post("/events", s.handleCreateEvent)
		r.Put("/events/{id}", s.handleUpdateEvent)
		r.Delete("/events/{id}", s.handleDeleteEvent)

		r.Put("/contacts/{id}/read", s.handleMarkContactRead)
		r.Delete("/contacts/{id}", s.handleDeleteContact)

		r.Post("/bishops-charge", s.handleCreateCharge)
		r.Put("/bishops-charge/{id}", s.handleUpdateCharge)
		r.Delete("/bishops-charge/{id}", s.handleDeleteCharge)

		r.Post("/bishops-charge/{id}/drafts", s.handleOpenDraft)
		r.Get("/drafts/{draftId}", s.handleGetDraft)
		r.Post("/drafts/{draftId}/commands", s.handleDraftCommand)
		r.Post("/drafts/{draftId}/template", s.handleDraftTemplate)
		r.Post("/drafts/{draftId}/keys", s.handleDraftKey)
		r.Post("/drafts/{draftId}/save", s.handleSaveDraft)
		r.Delete("/drafts/{draftId}", s.handleCloseDraft)
	})

	r.With(s.requireAction(rbac.ActionPublish)).Post("/bishops-charge/{id}/activate", s.handleActivateCharge)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAction(rbac.ActionManageUsers))
		r.Get("/users", s.handleListUsers)
		r.Put("/users/{id}/role", s.handleSetUserRole)
	})
}

// respond writes item with status, or the mapped error.
func (s *HTTPServer) respond(w http.ResponseWriter, r *http.Request, status int, item any, err error) {
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, status, item)
}

func (s *HTTPServer) respondDeleted(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleCreateArchdeaconry(w http.ResponseWriter, r *http.Request) {
	var input ArchdeaconryInput
	if !decode(w, r, &input) {
		return
	}
	item, err := s.service.CreateArchdeaconry(r.Context(), input)
	s.respond(w, r, http.StatusCreated, item, err)
}

func (s *HTTPServer) handleUpdateArchdeaconry(w http.ResponseWriter, r *http.Request) {
	var patch ArchdeaconryPatch
	if !decode(w, r, &patch) {
		return
	}
	item, err := s.service.UpdateArchdeaconry(r.Context(), chi.URLParam(r, "id"), patch)
	s.respond(w, r, http.StatusOK, item, err)
}

func (s *HTTPServer) handleDeleteArchdeaconry(w http.ResponseWriter, r *http.Request) {
	s.respondDeleted(w, r, s.service.DeleteArchdeaconry(r.Context(), chi.URLParam(r, "id")))
}

func (s *HTTPServer) handleCreateParish(w http.ResponseWriter, r *http.Request) {
	var input ParishInput
	if !decode(w, r, &input) {
		return
	}
	item, err := s.service.CreateParish(r.Context(), input)
	s.respond(w, r, http.StatusCreated, item, err)
}

func (s *HTTPServer) handleUpdateParish(w http.ResponseWriter, r *http.Request) {
	var patch ParishPatch
	if !decode(w, r, &patch) {
		return
	}
	item, err := s.service.UpdateParish(r.Context(), chi.URLParam(r, "id"), patch)
	s.respond(w, r, http.StatusOK, item, err)
}

func (s *HTTPServer) handleDeleteParish(w http.ResponseWriter, r *http.Request) {
	s.respondDeleted(w, r, s.service.DeleteParish(r.Context(), chi.URLParam(r, "id")))
}

func (s *HTTPServer) handleCreatePriest(w http.ResponseWriter, r *http.Request) {
	var input PriestInput
	if !decode(w, r, &input) {
		return
	}
	item, err := s.service.CreatePriest(r.Context(), input)
	s.respond(w, r, http.StatusCreated, item, err)
}

func (s *HTTPServer) handleUpdatePriest(w http.ResponseWriter, r *http.Request) {
	var patch PriestPatch
	if !decode(w, r, &patch) {
		return
	}
	item, err := s.service.UpdatePriest(r.Context(), chi.URLParam(r, "id"), patch)
	s.respond(w, r, http.StatusOK, item, err)
}

func (s *HTTPServer) handleDeletePriest(w http.ResponseWriter, r *http.Request) {
	s.respondDeleted(w, r, s.service.DeletePriest(r.Context(), chi.URLParam(r, "id")))
}

func (s *HTTPServer) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var input EventInput
	if !decode(w, r, &input) {
		return
	}
	item, err := s.service.CreateEvent(r.Context(), input)
	s.respond(w, r, http.StatusCreated, item, err)
}

func (s *HTTPServer) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	var patch EventPatch
	if !decode(w, r, &patch) {
		return
	}
	item, err := s.service.UpdateEvent(r.Context(), chi.URLParam(r, "id"), patch)
	s.respond(w, r, http.StatusOK, item, err)
}

func (s *HTTPServer) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	s.respondDeleted(w, r, s.service.DeleteEvent(r.Context(), chi.URLParam(r, "id")))
}

func (s *HTTPServer) handleListContacts(w http.ResponseWriter, r *http.Request) {
	unread, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
	items, err := s.service.ListContacts(r.Context(), unread)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"contacts": items})
}

// handleMarkContactRead marks the message read. A body of {"isRead": false}
// marks it unread again.
func (s *HTTPServer) handleMarkContactRead(w http.ResponseWriter, r *http.Request) {
	input := struct {
		IsRead *bool `json:"isRead"`
	}{}
	if r.ContentLength != 0 && !decode(w, r, &input) {
		return
	}
	read := input.IsRead == nil || *input.IsRead
	item, err := s.service.MarkContactRead(r.Context(), chi.URLParam(r, "id"), read)
	s.respond(w, r, http.StatusOK, item, err)
}

func (s *HTTPServer) handleDeleteContact(w http.ResponseWriter, r *http.Request) {
	s.respondDeleted(w, r, s.service.DeleteContact(r.Context(), chi.URLParam(r, "id")))
}

func (s *HTTPServer) handleListCharges(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListCharges(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"charges": items})
}

func (s *HTTPServer) handleGetCharge(w http.ResponseWriter, r *http.Request) {
	item, err := s.service.GetCharge(r.Context(), chi.URLParam(r, "id"))
	s.respond(w, r, http.StatusOK, item, err)
}

func (s *HTTPServer) handleCreateCharge(w http.ResponseWriter, r *http.Request) {
	var input ChargeInput
	if !decode(w, r, &input) {
		return
	}
	session := sessionFrom(r)
	if input.IsActive && !s.service.Can(session.Role, rbac.ActionPublish) {
		s.forbid(w, r, session, rbac.ActionPublish)
		return
	}
	item, err := s.service.CreateCharge(r.Context(), session, input)
	s.respond(w, r, http.StatusCreated, item, err)
}

func (s *HTTPServer) handleUpdateCharge(w http.ResponseWriter, r *http.Request) {
	var patch ChargePatch
	if !decode(w, r, &patch) {
		return
	}
	session := sessionFrom(r)
	if patch.IsActive != nil && *patch.IsActive && !s.service.Can(session.Role, rbac.ActionPublish) {
		s.forbid(w, r, session, rbac.ActionPublish)
		return
	}
	item, err := s.service.UpdateCharge(r.Context(), session, chi.URLParam(r, "id"), patch)
	s.respond(w, r, http.StatusOK, item, err)
}

func (s *HTTPServer) handleDeleteCharge(w http.ResponseWriter, r *http.Request) {
	s.respondDeleted(w, r, s.service.DeleteCharge(r.Context(), chi.URLParam(r, "id")))
}

func (s *HTTPServer) handleActivateCharge(w http.ResponseWriter, r *http.Request) {
	item, err := s.service.ActivateCharge(r.Context(), sessionFrom(r), chi.URLParam(r, "id"))
	s.respond(w, r, http.StatusOK, item, err)
}

func (s *HTTPServer) handleChargeHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit")
	if !ok {
		invalidQuery(w, "limit", "must be a non-negative integer")
		return
	}
	revisions, err := s.service.ChargeHistory(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revisions": revisions})
}

func (s *HTTPServer) handleChargeRevision(w http.ResponseWriter, r *http.Request) {
	item, err := s.service.ChargeRevision(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "hash"))
	s.respond(w, r, http.StatusOK, item, err)
}

func (s *HTTPServer) handleExportCharge(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	result, err := s.service.ExportCharge(r.Context(), chi.URLParam(r, "id"),
		strings.ToLower(strings.TrimSpace(query.Get("format"))), strings.TrimSpace(query.Get("version")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	if result.ArchiveKey != "" {
		w.Header().Set("X-Archive-Key", result.ArchiveKey)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"templates": s.service.ListTemplates()})
}

func (s *HTTPServer) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	item, err := s.service.GetTemplate(chi.URLParam(r, "id"))
	s.respond(w, r, http.StatusOK, item, err)
}

func (s *HTTPServer) handleOpenDraft(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.OpenDraft(r.Context(), sessionFrom(r), chi.URLParam(r, "id"))
	s.respond(w, r, http.StatusCreated, view, err)
}

func (s *HTTPServer) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.GetDraft(chi.URLParam(r, "draftId"))
	s.respond(w, r, http.StatusOK, view, err)
}

func (s *HTTPServer) handleDraftCommand(w http.ResponseWriter, r *http.Request) {
	var cmd editor.Command
	if !decode(w, r, &cmd) {
		return
	}
	view, err := s.service.ExecDraftCommand(chi.URLParam(r, "draftId"), cmd)
	s.respond(w, r, http.StatusOK, view, err)
}

func (s *HTTPServer) handleDraftTemplate(w http.ResponseWriter, r *http.Request) {
	var input struct {
		TemplateID string `json:"templateId"`
	}
	if !decode(w, r, &input) {
		return
	}
	view, err := s.service.ApplyTemplate(chi.URLParam(r, "draftId"), strings.TrimSpace(input.TemplateID))
	s.respond(w, r, http.StatusOK, view, err)
}

func (s *HTTPServer) handleDraftKey(w http.ResponseWriter, r *http.Request) {
	var input DraftKeyInput
	if !decode(w, r, &input) {
		return
	}
	view, err := s.service.HandleDraftKey(r.Context(), chi.URLParam(r, "draftId"), input)
	s.respond(w, r, http.StatusOK, view, err)
}

func (s *HTTPServer) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.SaveDraft(r.Context(), chi.URLParam(r, "draftId"))
	s.respond(w, r, http.StatusOK, view, err)
}

func (s *HTTPServer) handleCloseDraft(w http.ResponseWriter, r *http.Request) {
	s.respondDeleted(w, r, s.service.CloseDraft(chi.URLParam(r, "draftId")))
}

func (s *HTTPServer) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.service.ListUsers(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *HTTPServer) handleSetUserRole(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Role string `json:"role"`
	}
	if !decode(w, r, &input) {
		return
	}
	user, err := s.service.SetUserRole(r.Context(), sessionFrom(r), chi.URLParam(r, "id"), input.Role)
	s.respond(w, r, http.StatusOK, user, err)
}
