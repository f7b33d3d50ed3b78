// Copyright 2025 James Ross
package httpapi

import "time"

// generateRequest is the body of POST /api/generate.
type generateRequest struct {
	URL         string                 `json:"url"`
	UserID      string                 `json:"user_id"`
	LLMModel    string                 `json:"llm_model"`
	TTSModel    string                 `json:"tts_model"`
	NeedSummary *bool                  `json:"need_summary"`
	TTSConfig   map[string]interface{} `json:"tts_config"`
	PromptText  string                 `json:"prompt_text"`
	NLPTexts    []string               `json:"nlp_texts"`
}

type generateResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id"`
}

type progressResponse struct {
	JobID          string                 `json:"job_id"`
	Status         string                 `json:"status"`
	Progress       int                    `json:"progress"`
	Message        string                 `json:"message,omitempty"`
	Stage          string                 `json:"stage,omitempty"`
	ElapsedTime    float64                `json:"elapsed_time"`
	Result         map[string]interface{} `json:"result,omitempty"`
	Error          string                 `json:"error,omitempty"`
	Cancelled      bool                   `json:"cancelled"`
	TimeoutWarning bool                   `json:"timeout_warning,omitempty"`
}

type cancelResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id"`
}

type episodeResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	AudioFile string    `json:"audio_file"`
	Created   time.Time `json:"created"`
	SizeMB    float64   `json:"size_mb"`
	Duration  float64   `json:"duration"`
}

type qrcodeResponse struct {
	RSSURL           string `json:"rss_url"`
	ApplePodcastsURL string `json:"apple_podcasts_url"`
	QRCode           string `json:"qr_code"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
