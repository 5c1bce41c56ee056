package lineage

import (
	"net/http"
	"strings"

	"credify/utils"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// Handler serves lineage reads. PublicBaseURL is where shared verification
// pages live.
type Handler struct {
	Resolver      *Resolver
	PublicBaseURL string
}

func NewHandler(resolver *Resolver, publicBaseURL string) *Handler {
	return &Handler{Resolver: resolver, PublicBaseURL: strings.TrimRight(publicBaseURL, "/")}
}

// GetLineage responds with the verification result and uploader tree.
func (h *Handler) GetLineage(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	lineage, err := h.Resolver.GetLineage(r.Context(), ps.ByName("hash"))
	if err != nil {
		utils.RespondWithAppError(w, err)
		return
	}
	if lineage == nil {
		utils.RespondWithError(w, http.StatusNotFound, "No content found for this hash")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, lineage)
}

// ShareQR renders a PNG QR code pointing at the public verification page
// of the content.
func (h *Handler) ShareQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	hash := strings.TrimSpace(ps.ByName("hash"))
	if hash == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "contentHash is required")
		return
	}
	lineage, err := h.Resolver.GetLineage(r.Context(), hash)
	if err != nil {
		utils.RespondWithAppError(w, err)
		return
	}
	if lineage == nil {
		utils.RespondWithError(w, http.StatusNotFound, "No content found for this hash")
		return
	}

	png, err := qrcode.Encode(h.PublicBaseURL+"/verify/"+hash, qrcode.Medium, 256)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to render QR code")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
