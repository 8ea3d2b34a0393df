package ticketing

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/chatdesk/internal/httpapi"
	"github.com/nextlevelbuilder/chatdesk/internal/model"
)

// RegisterRoutes wires the ticket manager's admin HTTP surface (spec §6):
// health plus a synchronous manual ticket-creation endpoint.
func RegisterRoutes(mux *http.ServeMux, svc *Service) {
	httpapi.RegisterHealth(mux, "ticketmanager", svc.HealthChecks())

	mux.HandleFunc("POST /tickets", func(w http.ResponseWriter, r *http.Request) {
		var spec model.TicketSpec
		if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
			httpapi.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if spec.Subject == "" || spec.Description == "" {
			httpapi.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "subject and description are required"})
			return
		}
		if spec.ID == "" {
			spec.ID = uuid.NewString()
		}

		ticketID, err := svc.CreateTicketManually(r.Context(), spec)
		if err != nil {
			httpapi.WriteJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
			return
		}
		httpapi.WriteJSON(w, http.StatusCreated, map[string]string{"ticket_id": ticketID})
	})
}
