package transport

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/chatdesk/internal/httpapi"
	"github.com/nextlevelbuilder/chatdesk/internal/model"
)

// RegisterRoutes wires the transport gateway's admin HTTP surface (spec §6):
// health/status plus POST /send and the session management endpoints.
func RegisterRoutes(mux *http.ServeMux, svc *Service) {
	httpapi.RegisterHealth(mux, "transport", svc.HealthChecks())
	httpapi.RegisterStatus(mux, svc.StatusDetail)

	mux.HandleFunc("POST /send", func(w http.ResponseWriter, r *http.Request) {
		var cmd model.OutboundCommand
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			httpapi.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if cmd.ID == "" {
			cmd.ID = uuid.NewString()
		}
		if err := svc.Enqueue(cmd); err != nil {
			httpapi.WriteJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
			return
		}
		httpapi.WriteJSON(w, http.StatusAccepted, map[string]string{"id": cmd.ID})
	})

	mux.HandleFunc("GET /session", func(w http.ResponseWriter, r *http.Request) {
		state, err := svc.session.Load()
		if err != nil {
			httpapi.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if state == nil {
			httpapi.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "no session persisted yet"})
			return
		}
		httpapi.WriteJSON(w, http.StatusOK, state)
	})

	mux.HandleFunc("POST /session/backup", func(w http.ResponseWriter, r *http.Request) {
		state := SessionState{SessionName: svc.cfg.SessionName, BotIdentity: svc.cfg.BotIdentity}
		if err := svc.session.Save(state); err != nil {
			httpapi.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		httpapi.WriteJSON(w, http.StatusOK, map[string]string{"status": "backed up"})
	})

	mux.HandleFunc("GET /session/backups", func(w http.ResponseWriter, r *http.Request) {
		state, err := svc.session.Load()
		if err != nil {
			httpapi.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		backups := []SessionState{}
		if state != nil {
			backups = append(backups, *state)
		}
		httpapi.WriteJSON(w, http.StatusOK, map[string]interface{}{"backups": backups})
	})

	mux.HandleFunc("POST /session/restore", func(w http.ResponseWriter, r *http.Request) {
		state, err := svc.session.Load()
		if err != nil {
			httpapi.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if state == nil {
			httpapi.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "nothing to restore"})
			return
		}
		httpapi.WriteJSON(w, http.StatusOK, state)
	})
}
