package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"sherockets/adapters/survey"
	"sherockets/app"
	"sherockets/domain/core"
	"sherockets/domain/run"
	"sherockets/internal/errors"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("%s %s: %v", r.Method, r.URL.Path, err)
	} else {
		s.logger.Debug("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, errorResponse{Code: errors.GetCode(err), Message: err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"study":      s.service.Study().Name,
		"persistent": s.service.Persistent(),
	})
}

func (s *Server) handleStudy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Study())
}

// handleEstimate accepts a CSV body, an XLSX body, or a multipart upload in field "file".
// Query parameters coding, method, iterations, seed and persist override the configuration.
func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.config.MaxUploadMB)<<20)

	overrides, persist, err := parseOverrides(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	src, format, closeFn, err := uploadSource(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer closeFn()

	table, err := s.service.ReadSurvey(r.Context(), src, format)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.service.Estimate(r.Context(), app.EstimateRequest{
		Table:     table,
		Overrides: overrides,
		Persist:   persist && s.service.Persistent(),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := run.Filters{Study: q.Get("study")}
	var err error
	if filters.Limit, err = intParam(q.Get("limit")); err != nil {
		s.writeError(w, r, err)
		return
	}
	if filters.Offset, err = intParam(q.Get("offset")); err != nil {
		s.writeError(w, r, err)
		return
	}

	runs, err := s.service.ListRuns(r.Context(), filters)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs, "count": len(runs)})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		s.writeError(w, r, errors.InvalidInput("run id is required"))
		return
	}
	rn, err := s.service.GetRun(r.Context(), core.RunID(id))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rn)
}

func parseOverrides(r *http.Request) (app.Overrides, bool, error) {
	q := r.URL.Query()
	o := app.Overrides{Scheme: q.Get("coding"), Method: q.Get("method")}

	var err error
	if o.Iterations, err = intParam(q.Get("iterations")); err != nil {
		return o, false, err
	}
	if v := q.Get("seed"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return o, false, errors.InvalidInput(fmt.Sprintf("seed %q is not an integer", v))
		}
		o.Seed = &seed
	}

	persist := true
	if v := q.Get("persist"); v != "" {
		if persist, err = strconv.ParseBool(v); err != nil {
			return o, false, errors.InvalidInput(fmt.Sprintf("persist %q is not a boolean", v))
		}
	}
	return o, persist, nil
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.InvalidInput(fmt.Sprintf("%q is not a non-negative integer", v))
	}
	return n, nil
}

// uploadSource picks the survey stream out of the request
func uploadSource(r *http.Request) (io.Reader, survey.Format, func(), error) {
	noop := func() {}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch {
	case strings.HasPrefix(mediaType, "multipart/"):
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", noop, errors.InvalidInput(fmt.Sprintf("multipart upload needs a \"file\" field: %v", err))
		}
		return file, survey.FormatFromPath(header.Filename), func() { file.Close() }, nil
	case mediaType == xlsxContentType || r.URL.Query().Get("format") == string(survey.FormatXLSX):
		return r.Body, survey.FormatXLSX, noop, nil
	default:
		return r.Body, survey.FormatCSV, noop, nil
	}
}
