package handlers

import (
	"log/slog"
	"net/http"

	"github.com/nikhilbhutani/historyhub/internal/multimodal/stt"
)

type TranscribeHandler struct {
	provider  stt.Provider
	maxUpload int64
}

func NewTranscribeHandler(provider stt.Provider, maxUploadMB int) *TranscribeHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 25
	}
	return &TranscribeHandler{provider: provider, maxUpload: int64(maxUploadMB) << 20}
}

// Transcribe forwards the uploaded "file" part to the speech-to-text backend.
func (h *TranscribeHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "multipart form with an audio file required")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file required")
		return
	}
	defer file.Close()

	result, err := h.provider.Transcribe(r.Context(), stt.Request{
		Filename: header.Filename,
		Audio:    file,
		Language: r.FormValue("language"),
		Prompt:   r.FormValue("prompt"),
	})
	if err != nil {
		slog.Error("transcription failed", "provider", h.provider.Name(), "file", header.Filename, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}
