// Copyright 2025 James Ross
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ghostradio/podcastd/internal/episode"
	"github.com/ghostradio/podcastd/internal/jobstatus"
	"github.com/ghostradio/podcastd/internal/obs"
	"github.com/ghostradio/podcastd/internal/queue"
	"github.com/google/uuid"
)

const defaultUserID = "anonymous"

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required", nil)
		return
	}

	userID := req.UserID
	if userID == "" {
		userID = defaultUserID
	}
	needSummary := true
	if req.NeedSummary != nil {
		needSummary = *req.NeedSummary
	}

	jobID := uuid.NewString()
	if err := s.statuses.Create(jobstatus.New(jobID, req.URL, userID)); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create job", err)
		return
	}

	ticket := queue.Ticket{
		JobID:       jobID,
		UserID:      userID,
		URL:         req.URL,
		LLMChoice:   req.LLMModel,
		TTSChoice:   req.TTSModel,
		TTSOptions:  req.TTSConfig,
		NeedSummary: needSummary,
		MaxRetries:  s.cfg.Worker.MaxAttempts,
	}
	if _, err := s.queue.Add(ticket); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to enqueue job", err)
		return
	}
	if _, err := s.statuses.AdvanceStage(jobID, jobstatus.Queued, "queued", 5, "waiting for worker"); err != nil {
		s.log.Warn("advance to queued failed", obs.String("job_id", jobID), obs.Err(err))
	}

	obs.JobsIngested.Inc()
	s.worker.Trigger(r.Context())

	writeJSON(w, http.StatusOK, generateResponse{Success: true, JobID: jobID})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	job, err := s.statuses.Get(jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found", nil)
		return
	}

	budget := s.stageBudget(job.Stage)
	resp := progressResponse{
		JobID:          job.ID,
		Status:         string(job.Status),
		Progress:       job.Progress,
		Message:        job.Message,
		Stage:          job.Stage,
		ElapsedTime:    time.Since(job.CreatedAt).Seconds(),
		Result:         job.Result,
		Error:          job.Error,
		Cancelled:      job.Cancelled,
		TimeoutWarning: budget > 0 && jobstatus.TimeoutWarning(job, budget),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) stageBudget(stage string) time.Duration {
	switch stage {
	case "fetching":
		return s.cfg.Worker.StageBudgets.Fetch
	case "llm_processing":
		return s.cfg.Worker.StageBudgets.LLM
	case "tts_generating":
		return s.cfg.Worker.StageBudgets.TTS
	case "processing":
		return s.cfg.Worker.StageBudgets.Persist
	default:
		return 0
	}
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	job, err := s.statuses.Cancel(jobID, "cancelled by user")
	switch {
	case errors.Is(err, jobstatus.ErrNotCancellable):
		writeError(w, http.StatusBadRequest, fmt.Sprintf("job is not cancellable in status %s", job.Status), nil)
		return
	case err != nil:
		writeError(w, http.StatusNotFound, "job not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, cancelResponse{Success: true, JobID: jobID})
}

func (s *Server) handleEpisodes(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = defaultUserID
	}

	catalog, err := episode.NewCatalog(s.cfg.Storage.EpisodesDir, userID, s.cfg.Retention.EpisodesPerUser)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to open episode catalog", err)
		return
	}
	list, err := catalog.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list episodes", err)
		return
	}

	out := make([]episodeResponse, 0, len(list))
	for _, ep := range list {
		out = append(out, episodeResponse{
			ID:        ep.ID,
			Title:     ep.Title,
			AudioFile: ep.AudioFile,
			Created:   ep.CreatedAt,
			SizeMB:    float64(ep.SizeBytes) / (1024 * 1024),
			Duration:  ep.DurationSeconds,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleQRCode(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = defaultUserID
	}

	rssURL := fmt.Sprintf("%s/episodes/%s/feed.xml", s.cfg.Podcast.BaseURL, userID)
	payload, err := s.feedQR(rssURL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate qr code", err)
		return
	}
	writeJSON(w, http.StatusOK, qrcodeResponse{
		RSSURL:           payload.RSSURL,
		ApplePodcastsURL: payload.ApplePodcastsURL,
		QRCode:           payload.QRCodeDataURL,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

func (s *Server) handleHealthWorker(w http.ResponseWriter, r *http.Request) {
	depth, err := s.queue.Depth()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read queue depth", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"queue_depth": depth,
	})
}

func (s *Server) handleHealthSystem(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"uptime_sec": time.Since(s.startedAt).Seconds(),
	})
}

func (s *Server) handleHealthFull(w http.ResponseWriter, r *http.Request) {
	depth, err := s.queue.Depth()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read queue depth", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"uptime_sec":  time.Since(s.startedAt).Seconds(),
		"queue_depth": depth,
		"providers":   s.registry.Status(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := errorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
