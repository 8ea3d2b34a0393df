package classify

import (
	"encoding/json"
	"net/http"

	"github.com/nextlevelbuilder/chatdesk/internal/httpapi"
)

// RegisterRoutes wires the classifier's admin HTTP surface (spec §6):
// health plus a synchronous manual classification endpoint.
func RegisterRoutes(mux *http.ServeMux, svc *Service) {
	httpapi.RegisterHealth(mux, "classifier", svc.HealthChecks())

	mux.HandleFunc("POST /classify", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpapi.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if req.Text == "" {
			httpapi.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "text is required"})
			return
		}
		classification := svc.Classify(r.Context(), req.Text)
		httpapi.WriteJSON(w, http.StatusOK, classification)
	})
}
