package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/cardiolab/afdash/internal/analysis"
	"github.com/cardiolab/afdash/internal/flow"
	"github.com/go-chi/chi/v5"
)

// maxUploadBytes bounds an analysis upload. Record archives run to a few
// megabytes; this leaves generous headroom.
const maxUploadBytes = 64 << 20

func (s *Server) controllerFor(w http.ResponseWriter, r *http.Request) *flow.Controller {
	mode := analysis.Mode(chi.URLParam(r, "mode"))
	ctrl, ok := s.flows.Get(UserID(r.Context()), mode)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("unknown analysis mode %q", mode)})
		return nil
	}
	return ctrl
}

func readUpload(fh *multipart.FileHeader) (flow.NamedFile, error) {
	f, err := fh.Open()
	if err != nil {
		return flow.NamedFile{}, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return flow.NamedFile{}, err
	}
	return flow.NamedFile{Name: fh.Filename, Content: content}, nil
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctrl := s.controllerFor(w, r)
	if ctrl == nil {
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form: " + err.Error()})
		return
	}

	files := make(map[analysis.FileKind]flow.NamedFile)
	for field, kind := range map[string]analysis.FileKind{
		"metadata_file": analysis.FileMetadataCSV,
		"records_zip":   analysis.FileRecordsZip,
	} {
		fhs := r.MultipartForm.File[field]
		if len(fhs) == 0 {
			continue
		}
		nf, err := readUpload(fhs[0])
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reading upload: " + err.Error()})
			return
		}
		files[kind] = nf
	}

	result, err := ctrl.Analyze(r.Context(), files)
	if err != nil {
		s.writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctrl := s.controllerFor(w, r)
	if ctrl == nil {
		return
	}
	writeJSON(w, http.StatusOK, ctrl.Status())
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	ctrl := s.controllerFor(w, r)
	if ctrl == nil {
		return
	}

	rec, err := ctrl.Save(r.Context())
	if err != nil {
		s.writeFlowError(w, err)
		return
	}

	userID := UserID(r.Context())
	if records, lerr := s.records.ListRecordsByUser(r.Context(), userID); lerr == nil {
		s.hub.PublishRecords(userID, records)
	} else {
		s.log.Error("listing records after save", "error", lerr)
	}

	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	ctrl := s.controllerFor(w, r)
	if ctrl == nil {
		return
	}
	ctrl.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	ctrl := s.controllerFor(w, r)
	if ctrl == nil {
		return
	}

	pdf, filename, err := ctrl.Report(r.Context())
	if err != nil {
		s.writeFlowError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, filename))
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}

// writeFlowError maps the analysis error taxonomy onto HTTP statuses.
func (s *Server) writeFlowError(w http.ResponseWriter, err error) {
	var (
		vErr *flow.ValidationError
		bErr *flow.BackendError
		pErr *flow.PersistenceError
		rErr *flow.ReportError
	)
	switch {
	case errors.Is(err, flow.ErrBusy):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": vErr.Message})
	case errors.As(err, &bErr), errors.As(err, &rErr):
		s.log.Error("backend call failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	case errors.As(err, &pErr):
		s.log.Error("persisting record failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	default:
		s.log.Error("analysis error", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
