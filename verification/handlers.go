package verification

import (
	"encoding/json"
	"net/http"

	"credify/utils"

	"github.com/julienschmidt/httprouter"
)

// Handler exposes the orchestrator over HTTP.
type Handler struct {
	Jobs *Orchestrator
}

func NewHandler(jobs *Orchestrator) *Handler {
	return &Handler{Jobs: jobs}
}

// Analyze returns the job for :id, starting one if none is cached.
// Anonymous callers only learn whether the content is already known.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	job, err := h.Jobs.StartVerification(r.Context(), ps.ByName("id"), utils.GetUserIDFromRequest(r))
	if err != nil {
		utils.RespondWithAppError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, job)
}

type verifyRequest struct {
	ContentID string `json:"contentId"`
}

// Verify starts the full pipeline for the authenticated user.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	userID := utils.GetUserIDFromRequest(r)
	if userID == "" {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req verifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	job, err := h.Jobs.StartVerification(r.Context(), req.ContentID, userID)
	if err != nil {
		utils.RespondWithAppError(w, err)
		return
	}
	code := http.StatusOK
	if !job.Status.Terminal() {
		code = http.StatusAccepted
	}
	utils.RespondWithJSON(w, code, job)
}

// Status is a pure read of the cached job.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	job, ok, err := h.Jobs.Status(r.Context(), ps.ByName("id"))
	if err != nil {
		utils.RespondWithAppError(w, err)
		return
	}
	if !ok {
		utils.RespondWithError(w, http.StatusNotFound, "No verification in progress for this content")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, job)
}
