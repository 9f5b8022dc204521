package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"iot-gateway/common"
	"iot-gateway/mqtt"
	"iot-gateway/relay"
	"iot-gateway/router"
	"iot-gateway/serial"
	"iot-gateway/storage"
)

const maxRecentLimit = 1000

type healthResponse struct {
	Status   string        `json:"status"`
	Broker   bool          `json:"broker"`
	Serial   bool          `json:"serial"`
	Database string        `json:"database"`
	Router   *router.Stats `json:"router,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:   "ok",
		Broker:   s.broker.IsConnected(),
		Serial:   s.serial != nil && s.serial.Available(),
		Database: "ok",
	}

	if err := s.records.HealthCheck(r.Context()); err != nil {
		resp.Database = err.Error()
		resp.Status = "degraded"
	}
	if !resp.Broker {
		resp.Status = "degraded"
	}
	if s.stats != nil {
		stats := s.stats()
		resp.Router = &stats
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	limit := storage.DefaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxRecentLimit {
			writeBadRequest(w, "limit must be an integer between 1 and "+strconv.Itoa(maxRecentLimit))
			return
		}
		limit = n
	}

	records, err := s.records.Recent(r.Context(), limit)
	if err != nil {
		s.logger.WithError(err).Error("Failed to read records")
		writeInternalError(w, "failed to read data")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": records})
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "failed to read body")
		return
	}
	if !json.Valid(body) {
		writeBadRequest(w, "body must be valid JSON")
		return
	}

	if err := s.broker.Publish(s.cfg.PublishTopic, body); err != nil {
		s.logger.WithError(err).WithField("topic", s.cfg.PublishTopic).Error("Failed to publish")
		writeInternalError(w, "failed to publish")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Data published"})
}

func (s *Server) handleDebugSerial(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Command string `json:"command"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Command == "" {
		writeBadRequest(w, "command is required")
		return
	}
	if s.serial == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "serial device unavailable")
		return
	}

	cmd := common.SerialCommand{Text: req.Command}
	resp, err := s.serial.Exchange(cmd)
	switch {
	case errors.Is(err, serial.ErrDeviceUnavailable):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "serial device unavailable")
		return
	case errors.Is(err, serial.ErrMalformedResponse):
		writeError(w, http.StatusBadGateway, ErrCodeInternal, "malformed serial response")
		return
	case err != nil:
		s.logger.WithError(err).Error("Serial exchange failed")
		writeInternalError(w, "serial exchange failed")
		return
	}

	writeJSON(w, http.StatusOK, common.NewDebugResponse(common.DebugExchange{
		Command:   cmd,
		Response:  resp,
		Timestamp: time.Now(),
	}))
}

func (s *Server) handleRelayControl(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceId")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "failed to read body")
		return
	}

	// relay and state are both required
	cmd, err := relay.DecodeControl(body)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	topic, payload, err := s.cfg.Topics.EncodeControl(deviceID, cmd.Relay, cmd.State)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if err := s.broker.Publish(topic, payload); err != nil {
		s.logger.WithError(err).WithField("device_id", deviceID).Error("Failed to publish relay control")
		if errors.Is(err, mqtt.ErrNotConnected) {
			writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "broker not connected")
			return
		}
		writeInternalError(w, "failed to publish")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "accepted",
		"topic":  topic,
		"relay":  cmd.Relay,
		"state":  cmd.State,
	})
}
