package forgery

import (
	"net/http"

	"credify/utils"

	"github.com/julienschmidt/httprouter"
)

type Handler struct {
	Service *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Service: svc}
}

// DetectForgery returns the detection for :id, starting one if needed.
func (h *Handler) DetectForgery(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	res, err := h.Service.Start(r.Context(), ps.ByName("id"), utils.GetUserIDFromRequest(r))
	if err != nil {
		utils.RespondWithAppError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, res)
}
