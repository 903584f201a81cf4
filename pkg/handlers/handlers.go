package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"driver-support-chat/pkg/config"
	"driver-support-chat/pkg/directory"
	"driver-support-chat/pkg/escalation"
	"driver-support-chat/pkg/ingress"
	"driver-support-chat/pkg/models"
	"driver-support-chat/pkg/store"
)

type Handler struct {
	config       *config.Config
	logger       *logrus.Logger
	store        store.ConversationStore
	registry     escalation.TicketRegistry
	ingress      *ingress.Ingress
	directory    directory.Directory
	isLeaderFunc func() bool
}

func NewHandler(config *config.Config, logger *logrus.Logger, st store.ConversationStore, registry escalation.TicketRegistry, in *ingress.Ingress, dir directory.Directory, isLeaderFunc func() bool) *Handler {
	if isLeaderFunc == nil {
		isLeaderFunc = func() bool { return true }
	}
	return &Handler{
		config:       config,
		logger:       logger,
		store:        st,
		registry:     registry,
		ingress:      in,
		directory:    dir,
		isLeaderFunc: isLeaderFunc,
	}
}

func (h *Handler) ValidateDriver(w http.ResponseWriter, r *http.Request) {
	var request struct {
		DriverID string `json:"driver_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	valid, err := h.directory.Validate(r.Context(), request.DriverID)
	if err != nil {
		h.logger.WithError(err).Error("Driver validation failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if !valid {
		writeJSONStatus(w, http.StatusNotFound, map[string]interface{}{
			"valid":   false,
			"message": "Driver ID not found.",
		})
		return
	}

	writeJSON(w, map[string]interface{}{
		"valid":   true,
		"message": "Driver ID verified.",
	})
}

func (h *Handler) ValidatePhone(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	driver, err := h.directory.FindByPhone(r.Context(), request.Phone)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeJSONStatus(w, http.StatusNotFound, map[string]interface{}{
				"valid":   false,
				"message": "Phone number not found.",
			})
			return
		}
		h.logger.WithError(err).Error("Phone lookup failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{
		"valid":     true,
		"driver_id": driver.DriverID,
		"message":   "Phone number linked to driver.",
	})
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var request struct {
		DriverID string `json:"driver_id"`
		Message  string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	inbound, assistant, err := h.ingress.Submit(r.Context(), request.DriverID, models.RoleDriver, request.Message)
	if err != nil {
		h.writeError(w, r, err, "Chat submit failed")
		return
	}

	if assistant == nil {
		// A human agent owns the session; the message went straight to them.
		writeJSON(w, map[string]interface{}{
			"intent":     "live_chat",
			"confidence": 1.0,
			"response":   "Message sent to agent.",
			"escalate":   true,
			"live_mode":  true,
			"message_id": inbound.ID,
		})
		return
	}

	writeJSON(w, map[string]interface{}{
		"intent":     assistant.Intent,
		"confidence": assistant.Confidence,
		"response":   assistant.Text,
		"escalate":   assistant.Escalate,
		"live_mode":  false,
		"message_id": inbound.ID,
	})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	driverID := mux.Vars(r)["driver_id"]
	if driverID == "" {
		http.Error(w, "Missing driver ID", http.StatusBadRequest)
		return
	}

	var (
		messages []models.Message
		err      error
	)
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		cursor, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil {
			http.Error(w, "Invalid cursor", http.StatusBadRequest)
			return
		}
		messages, err = h.store.ReadSince(r.Context(), driverID, cursor)
	} else {
		messages, err = h.store.History(r.Context(), driverID, h.config.HistoryLimit)
	}
	if err != nil {
		h.logger.WithError(err).WithField("driver_id", driverID).Error("Failed to fetch history")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, messages)
}

func (h *Handler) Escalations(w http.ResponseWriter, r *http.Request) {
	status := models.TicketStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = models.StatusOpen
	}

	tickets, err := h.registry.List(r.Context(), status)
	if err != nil {
		h.writeError(w, r, err, "Failed to list tickets")
		return
	}

	writeJSON(w, tickets)
}

func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	var request struct {
		TicketID string `json:"ticket_id"`
		AgentID  string `json:"agent_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ticket, err := h.registry.Claim(r.Context(), request.TicketID, request.AgentID)
	if err != nil {
		h.writeError(w, r, err, "Claim failed")
		return
	}

	h.logger.WithFields(logrus.Fields{
		"ticket_id": ticket.ID,
		"agent_id":  request.AgentID,
	}).Debug("Claim accepted")

	writeJSON(w, ticket)
}

func (h *Handler) AgentMessage(w http.ResponseWriter, r *http.Request) {
	var request struct {
		DriverID string `json:"driver_id"`
		AgentID  string `json:"agent_id"`
		Message  string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	msg, _, err := h.ingress.Submit(r.Context(), request.DriverID, models.RoleAgent, request.Message)
	if err != nil {
		h.writeError(w, r, err, "Agent message failed")
		return
	}

	// Agent activity keeps the claim lease alive.
	if request.AgentID != "" {
		if ticket, err := h.registry.ActiveForDriver(r.Context(), request.DriverID); err == nil && ticket.ClaimedBy == request.AgentID {
			if err := h.registry.Heartbeat(r.Context(), ticket.ID, request.AgentID); err != nil {
				h.logger.WithError(err).WithField("ticket_id", ticket.ID).Debug("Lease renewal failed")
			}
		}
	}

	writeJSON(w, map[string]interface{}{
		"status":     "success",
		"message_id": msg.ID,
	})
}

func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	var request struct {
		DriverID string `json:"driver_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ticket, err := h.registry.Resolve(r.Context(), request.DriverID)
	if err != nil {
		h.writeError(w, r, err, "Resolve failed")
		return
	}

	writeJSON(w, map[string]interface{}{
		"status": "success",
		"ticket": ticket,
	})
}

func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	var request struct {
		TicketID string `json:"ticket_id"`
		AgentID  string `json:"agent_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ticket, err := h.registry.Release(r.Context(), request.TicketID, escalation.ReleaseReasonAgent)
	if err != nil {
		h.writeError(w, r, err, "Release failed")
		return
	}

	writeJSON(w, map[string]interface{}{
		"status": "success",
		"ticket": ticket,
	})
}

func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var request struct {
		TicketID string `json:"ticket_id"`
		AgentID  string `json:"agent_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.registry.Heartbeat(r.Context(), request.TicketID, request.AgentID); err != nil {
		h.writeError(w, r, err, "Heartbeat failed")
		return
	}

	writeJSON(w, map[string]interface{}{"status": "success"})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	open, err := h.registry.List(r.Context(), models.StatusOpen)
	if err != nil {
		http.Error(w, "Health check failed", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, map[string]interface{}{
		"status":       "healthy",
		"is_leader":    h.isLeaderFunc(),
		"open_tickets": len(open),
		"timestamp":    time.Now(),
	})
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	open, err := h.registry.List(r.Context(), models.StatusOpen)
	if err != nil {
		http.Error(w, "Failed to get status", http.StatusInternalServerError)
		return
	}
	claimed, err := h.registry.List(r.Context(), models.StatusClaimed)
	if err != nil {
		http.Error(w, "Failed to get status", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{
		"is_leader":       h.isLeaderFunc(),
		"open_tickets":    len(open),
		"claimed_tickets": len(claimed),
		"timestamp":       time.Now(),
	})
}

// writeError maps the error taxonomy onto HTTP statuses: invalid input 400,
// unknown ids 404, expected concurrency conflicts 409, transient everything
// else 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		writeJSONStatus(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid_input"})
	case errors.Is(err, models.ErrNotFound):
		writeJSONStatus(w, http.StatusNotFound, map[string]interface{}{"error": "not_found"})
	case errors.Is(err, models.ErrNoActiveTicket):
		writeJSONStatus(w, http.StatusNotFound, map[string]interface{}{"error": "no_active_ticket"})
	case errors.Is(err, models.ErrAlreadyClaimed):
		writeJSONStatus(w, http.StatusConflict, map[string]interface{}{"error": "already_claimed"})
	default:
		h.logger.WithError(err).WithField("path", r.URL.Path).Error(msg)
		writeJSONStatus(w, http.StatusInternalServerError, map[string]interface{}{"error": "internal"})
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
