package handlers

import (
	"log/slog"
	"net/http"

	"github.com/Dosada05/tournament-groups/services"
)

type GroupHandler struct {
	responder
	groupService services.GroupService
}

func NewGroupHandler(gs services.GroupService, logger *slog.Logger) *GroupHandler {
	return &GroupHandler{
		responder:    responder{logger: logger},
		groupService: gs,
	}
}

// AssignTeamsToGroups handles POST /groups/assign
func (h *GroupHandler) AssignTeamsToGroups(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.principal(w, r)
	if !ok {
		return
	}

	var input services.AssignGroupsInput
	if err := readJSON(w, r, &input); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	assignment, err := h.groupService.AssignTeamsToGroups(r.Context(), input, caller)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.respond(w, r, http.StatusCreated, jsonResponse{"assignment": assignment})
}

// ListByTournament handles GET /tournaments/{tournamentID}/groups
func (h *GroupHandler) ListByTournament(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	groups, err := h.groupService.ListGroupsByTournament(r.Context(), tournamentID)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, jsonResponse{"groups": groups})
}

// ResetByTournament handles DELETE /tournaments/{tournamentID}/groups.
// A tournament without groups answers 200 with reset=false.
func (h *GroupHandler) ResetByTournament(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	caller, ok := h.principal(w, r)
	if !ok {
		return
	}

	result, err := h.groupService.ResetGroups(r.Context(), tournamentID, caller)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}

	env := jsonResponse{"reset": !result.NothingToReset(), "deleted": result.Deleted}
	if result.NothingToReset() {
		env["kind"] = services.KindName(services.ErrNothingToReset)
	}
	h.respond(w, r, http.StatusOK, env)
}
