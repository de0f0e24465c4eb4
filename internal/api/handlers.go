package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/p-n-ai/exam-shuffler/internal/export"
	"github.com/p-n-ai/exam-shuffler/internal/session"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeOK(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.ready(r.Context()); err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "not_ready", err.Error())
		return
	}
	writeOK(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Get(r.Context(), sessionID(r))
	s.respond(w, r, http.StatusOK, sess, err)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Reset(r.Context(), sessionID(r))
	s.respond(w, r, http.StatusOK, sess, err)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "input",
				fmt.Sprintf("The file is larger than %d MB.", s.maxUpload>>20))
			return
		}
		writeError(w, r, http.StatusBadRequest, "input", "Upload a PDF in the \"file\" field.")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "input", "Upload a PDF in the \"file\" field.")
		return
	}
	defer file.Close()

	if header.Size > s.maxUpload {
		writeError(w, r, http.StatusRequestEntityTooLarge, "input",
			fmt.Sprintf("The file is larger than %d MB.", s.maxUpload>>20))
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "input", "The upload could not be read.")
		return
	}

	sess, err := s.manager.Upload(r.Context(), sessionID(r), header.Filename, data)
	s.respond(w, r, http.StatusOK, sess, err)
}

type configRequest struct {
	StartPage     int   `json:"start_page"`
	EndPage       int   `json:"end_page"`
	IncludeImages *bool `json:"include_images"`
}

func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "input", "Invalid settings.")
		return
	}

	sess, err := s.manager.Configure(r.Context(), sessionID(r), session.Settings{
		StartPage:     req.StartPage,
		EndPage:       req.EndPage,
		IncludeImages: req.IncludeImages,
	})
	s.respond(w, r, http.StatusOK, sess, err)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "input", "Invalid page number.")
		return
	}

	img, err := s.manager.Preview(r.Context(), sessionID(r), page)
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=300")
	_, _ = w.Write(img)
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := s.manager.StartProcessing(ctx, sessionID(r)); err != nil {
		writeSessionError(w, r, err)
		return
	}
	sess, err := s.manager.Get(ctx, sessionID(r))
	s.respond(w, r, http.StatusAccepted, sess, err)
}

func (s *Server) handleReshuffle(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Reshuffle(r.Context(), sessionID(r))
	s.respond(w, r, http.StatusOK, sess, err)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(chi.URLParam(r, "format"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "input", "Unsupported export format.")
		return
	}

	file, err := s.manager.Export(r.Context(), sessionID(r), format)
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, file.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	_, _ = w.Write(file.Data)
}

func (s *Server) handleStartExam(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.StartExam(r.Context(), sessionID(r))
	s.respond(w, r, http.StatusOK, sess, err)
}

type answerRequest struct {
	OptionID string `json:"option_id"`
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "input", "Invalid answer.")
		return
	}
	sess, err := s.manager.SelectOption(r.Context(), sessionID(r), chi.URLParam(r, "questionID"), req.OptionID)
	s.respond(w, r, http.StatusOK, sess, err)
}

func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Finish(r.Context(), sessionID(r))
	s.respond(w, r, http.StatusOK, sess, err)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Retry(r.Context(), sessionID(r))
	s.respond(w, r, http.StatusOK, sess, err)
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.BackToMenu(r.Context(), sessionID(r))
	s.respond(w, r, http.StatusOK, sess, err)
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, sess *session.Session, err error) {
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeOK(w, r, status, newSessionView(sess))
}
