package http

import (
	"net/http"
	"strconv"

	"github.com/teamvidya/risk-hub/internal/application/command"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROBES
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.deps.Version})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.Health.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleMarkAttendance(w http.ResponseWriter, r *http.Request) {
	var records []command.Mark
	if err := decodeJSON(w, r, s.config.MaxBodyBytes, &records); err != nil {
		writeError(w, err, "")
		return
	}
	if err := validateRecords(s.validate, records); err != nil {
		writeError(w, err, "")
		return
	}

	res, err := s.deps.Attendance.HandleMark(r.Context(), command.MarkAttendanceCommand{Records: records})
	if err != nil {
		s.logger.Error("failed to mark attendance", "error", err, "request_id", RequestID(r.Context()))
		writeError(w, err, "Failed to save attendance")
		return
	}
	writeSuccess(w, "Attendance recorded and profiles updated!", res)
}

func (s *Server) handleHistoricalAttendance(w http.ResponseWriter, r *http.Request) {
	var records []command.HistoricalMark
	if err := decodeJSON(w, r, s.config.MaxBodyBytes, &records); err != nil {
		writeError(w, err, "")
		return
	}
	if len(records) == 0 {
		writeErrorMessage(w, http.StatusBadRequest, "No records to update.")
		return
	}
	if err := validateRecords(s.validate, records); err != nil {
		writeError(w, err, "")
		return
	}

	res, err := s.deps.Attendance.HandleHistorical(r.Context(), command.UpdateHistoricalAttendanceCommand{Records: records})
	if err != nil {
		s.logger.Error("failed to update attendance history", "error", err, "request_id", RequestID(r.Context()))
		writeError(w, err, "Failed to update history")
		return
	}
	writeSuccess(w, "Historical attendance updated successfully.", res)
}

// ══════════════════════════════════════════════════════════════════════════════
// TRIGGERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Engine.Recompute(r.Context())
	if err != nil {
		writeError(w, err, "Recomputation failed")
		return
	}
	writeSuccess(w, "Profiles recomputed.", report)
}

func (s *Server) handleTrainModel(w http.ResponseWriter, r *http.Request) {
	if s.deps.Train == nil {
		writeErrorMessage(w, http.StatusNotImplemented, "model training is disabled")
		return
	}
	res, err := s.deps.Train.Handle(r.Context())
	if err != nil {
		writeError(w, err, "Training failed")
		return
	}
	writeSuccess(w, "Risk model trained.", res)
}

func (s *Server) handleSendBulkAlert(w http.ResponseWriter, r *http.Request) {
	dryRun := false
	if raw := r.URL.Query().Get("dry_run"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "dry_run must be a boolean")
			return
		}
		dryRun = v
	}

	report, err := s.deps.Alerts.Handle(r.Context(), command.SendAlertsCommand{DryRun: dryRun})
	if err != nil {
		writeError(w, err, "Failed to send alerts")
		return
	}

	message := "Alerts sent."
	switch {
	case report.Selected == 0:
		message = "No at-risk students found."
	case report.DryRun:
		message = "Dry run, no alerts sent."
	case report.Failed > 0:
		message = "Alerts sent with failures."
	}
	writeSuccess(w, message, report)
}

// ══════════════════════════════════════════════════════════════════════════════
// DASHBOARD
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleStudents(w http.ResponseWriter, r *http.Request) {
	students, err := s.deps.Dashboard.Students(r.Context())
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, students)
}

func (s *Server) handleKPIStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Dashboard.KPIs(r.Context())
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Dashboard.Charts(r.Context())
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleMentorSuggestion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err, "")
		return
	}
	suggestion, err := s.deps.Suggestions.Handle(r.Context(), id)
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, suggestion)
}

func (s *Server) handleRecentAttendance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err, "")
		return
	}
	marks, err := s.deps.History.Recent(r.Context(), id)
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, marks)
}

func (s *Server) handleFullAttendance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err, "")
		return
	}
	marks, err := s.deps.History.Full(r.Context(), id)
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, marks)
}
