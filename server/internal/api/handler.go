package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/visioncontrol/visioncontrol/server/internal/datasource"
)

// maxBodyBytes bounds request bodies; dashboards send a few kilobytes at most.
const maxBodyBytes = 1 << 20

// Handler serves the datasource endpoints on top of an Engine.
type Handler struct {
	engine     *datasource.Engine
	corsOrigin string
	mux        *http.ServeMux
}

// New creates a Handler wired to engine and registers all routes.
func New(engine *datasource.Engine, corsOrigin string) http.Handler {
	h := &Handler{engine: engine, corsOrigin: corsOrigin, mux: http.NewServeMux()}

	h.mux.HandleFunc("/{$}", h.root)
	h.mux.HandleFunc("/search", h.search)
	h.mux.HandleFunc("/query", h.query)
	h.mux.HandleFunc("/variable", h.variable)
	h.mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})

	return withRequestLog(h)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", h.corsOrigin)
	w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, X-Request-ID")
	w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// root answers the datasource connection test.
func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	jsonResp(w, http.StatusOK, statusResponse{Status: "ok"})
}

// search lists every metric identifier. The request body, if any, is ignored.
func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	jsonResp(w, http.StatusOK, h.engine.Search())
}

// query runs every target of the request. An empty body yields [].
func (h *Handler) query(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req datasource.QueryRequest
	present, err := decodeBody(r, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !present {
		jsonResp(w, http.StatusOK, []struct{}{})
		return
	}

	out, err := h.engine.Query(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResp(w, http.StatusOK, out)
}

// variable resolves the options of one variable. An empty body yields [].
func (h *Handler) variable(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req datasource.VariableRequest
	present, err := decodeBody(r, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !present {
		jsonResp(w, http.StatusOK, []struct{}{})
		return
	}

	out, err := h.engine.Variable(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResp(w, http.StatusOK, out)
}

// --- helpers ----------------------------------------------------------------

// bodyError is a request body that could not be read or decoded.
type bodyError struct {
	err error
}

func (e *bodyError) Error() string { return fmt.Sprintf("invalid request body: %v", e.err) }
func (e *bodyError) Unwrap() error { return e.err }

// decodeBody decodes a JSON body into v. It reports false when the body is
// empty or blank.
func decodeBody(r *http.Request, v any) (bool, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return false, &bodyError{err: err}
	}
	if len(data) > maxBodyBytes {
		return false, &bodyError{err: fmt.Errorf("body exceeds %d bytes", maxBodyBytes)}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, &bodyError{err: err}
	}
	return true, nil
}

func allow(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

// statusFor maps an error to the HTTP status it is reported with.
func statusFor(err error) int {
	var be *bodyError
	var shape *datasource.UnsupportedResultShapeError
	switch {
	case errors.As(err, &be), datasource.IsRequestError(err):
		return http.StatusBadRequest
	case errors.As(err, &shape):
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	level := slog.LevelWarn
	if code >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.Log(r.Context(), level, "request failed",
		"path", r.URL.Path,
		"status", code,
		"request_id", w.Header().Get(requestIDHeader),
		"err", err,
	)
	jsonErr(w, code, err.Error())
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
