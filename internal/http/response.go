package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"cashbook/internal/analysis"
	"cashbook/internal/core"
	"cashbook/internal/log"
	"cashbook/internal/services"
	"cashbook/internal/storage"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

// errBadRequest marks malformed input found by the handlers themselves.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

type errorBody struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// statusFor maps service and storage errors to HTTP status codes.
func statusFor(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrNotAllowed),
		errors.Is(err, services.ErrNotSettleable),
		errors.Is(err, services.ErrNotFriends),
		errors.Is(err, storage.ErrConflict):
		return http.StatusConflict
	case errors.As(err, &verrs),
		errors.Is(err, errBadRequest),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidMonth),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrSameParty),
		errors.Is(err, analysis.ErrUnknownFilter):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// fail writes err with its mapped status. Server errors are logged and
// their details kept from the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldError, err, "path", r.URL.Path)
		writeError(w, status, "internal error")
		return
	}

	body := errorBody{Error: err.Error()}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		body.Error = "validation failed"
		for _, fe := range verrs {
			body.Fields = append(body.Fields, fe.Field()+": "+fe.Tag())
		}
	}
	writeJSON(w, status, body)
}

// decode reads a JSON body into dst and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequest("invalid JSON body: %v", err)
	}
	return s.validator.Validate(dst)
}

// pathMonth reads the {year} and {month} path values.
func pathMonth(r *http.Request) (core.Month, error) {
	year, err := strconv.Atoi(r.PathValue("year"))
	if err != nil {
		return core.Month{}, badRequest("invalid year %q", r.PathValue("year"))
	}
	month, err := strconv.Atoi(r.PathValue("month"))
	if err != nil {
		return core.Month{}, badRequest("invalid month %q", r.PathValue("month"))
	}
	m := core.NewMonth(year, month)
	if err := m.Validate(); err != nil {
		return core.Month{}, err
	}
	return m, nil
}

// queryMonth reads ?month=YYYY-MM, defaulting to the current month.
func queryMonth(r *http.Request) (core.Month, error) {
	v := strings.TrimSpace(r.URL.Query().Get("month"))
	if v == "" {
		return core.CurrentMonth(), nil
	}
	return core.ParseMonth(v)
}
