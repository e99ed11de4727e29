package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Dosada05/tournament-groups/middleware"
	"github.com/Dosada05/tournament-groups/models"
	"github.com/Dosada05/tournament-groups/services"
	"github.com/go-chi/chi/v5"
)

type jsonResponse map[string]interface{}

const maxBodyBytes = 1_048_576

func readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var invalidUnmarshalError *json.InvalidUnmarshalError
		var maxBytesError *http.MaxBytesError

		switch {
		case errors.As(err, &syntaxError):
			return fmt.Errorf("body contains badly-formed JSON (at character %d)", syntaxError.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return errors.New("body contains badly-formed JSON")
		case errors.As(err, &unmarshalTypeError):
			if unmarshalTypeError.Field != "" {
				return fmt.Errorf("body contains incorrect JSON type for field %q", unmarshalTypeError.Field)
			}
			return fmt.Errorf("body contains incorrect JSON type (at character %d)", unmarshalTypeError.Offset)
		case errors.Is(err, io.EOF):
			return errors.New("body must not be empty")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
			return fmt.Errorf("body contains unknown key %s", fieldName)
		case errors.As(err, &maxBytesError):
			return fmt.Errorf("body must not be larger than %d bytes", maxBytesError.Limit)
		case errors.As(err, &invalidUnmarshalError):
			panic(err)
		default:
			return err
		}
	}

	err = dec.Decode(&struct{}{})
	if !errors.Is(err, io.EOF) {
		return errors.New("body must only contain a single JSON value")
	}

	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}, headers http.Header) error {
	js, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		return err
	}
	js = append(js, '\n')

	for key, value := range headers {
		w.Header()[key] = value
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(js)
	return err
}

// responder is embedded by every handler so error responses share one logger.
type responder struct {
	logger *slog.Logger
}

func (h responder) respond(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	if err := writeJSON(w, status, data, nil); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to write JSON response",
			slog.String("path", r.URL.Path), slog.Any("error", err))
	}
}

func (h responder) errorResponse(w http.ResponseWriter, r *http.Request, status int, env jsonResponse) {
	if err := writeJSON(w, status, env, nil); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to write error response",
			slog.String("path", r.URL.Path), slog.Any("error", err))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (h responder) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.ErrorContext(r.Context(), "internal server error",
		slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.Any("error", err))
	message := "the server encountered a problem and could not process your request"
	h.errorResponse(w, r, http.StatusInternalServerError, jsonResponse{"error": message})
}

func (h responder) badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	h.errorResponse(w, r, http.StatusBadRequest, jsonResponse{"error": err.Error(), "kind": "InvalidArgument"})
}

func (h responder) unauthorizedResponse(w http.ResponseWriter, r *http.Request) {
	h.errorResponse(w, r, http.StatusUnauthorized, jsonResponse{"error": "failed to identify current user"})
}

// statusForKind maps error kinds to HTTP status codes.
func statusForKind(err error) (int, bool) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, true
	case errors.Is(err, services.ErrInvalidTransition):
		return http.StatusUnprocessableEntity, true
	case errors.Is(err, services.ErrInvalidState),
		errors.Is(err, services.ErrCapacityExceeded),
		errors.Is(err, services.ErrConflict),
		errors.Is(err, services.ErrTeamNameConflict):
		return http.StatusConflict, true
	case errors.Is(err, services.ErrInvalidArgument):
		return http.StatusBadRequest, true
	case errors.Is(err, services.ErrForbiddenOperation):
		return http.StatusForbidden, true
	}
	return 0, false
}

// mapServiceErrorToHTTP renders business-rule errors verbatim with their kind,
// field and limit; anything else is a 500.
func (h responder) mapServiceErrorToHTTP(w http.ResponseWriter, r *http.Request, err error) {
	status, ok := statusForKind(err)
	if !ok {
		h.serverErrorResponse(w, r, err)
		return
	}

	env := jsonResponse{"error": err.Error(), "kind": services.KindName(err)}
	var ruleErr *services.RuleError
	if errors.As(err, &ruleErr) {
		if ruleErr.Field != "" {
			env["field"] = ruleErr.Field
		}
		if ruleErr.Limit != nil {
			env["limit"] = *ruleErr.Limit
		}
	}
	if status == http.StatusConflict {
		h.logger.InfoContext(r.Context(), "request rejected",
			slog.String("path", r.URL.Path), slog.String("kind", services.KindName(err)), slog.String("error", err.Error()))
	}
	h.errorResponse(w, r, status, env)
}

func (h responder) principal(w http.ResponseWriter, r *http.Request) (models.Principal, bool) {
	p, err := middleware.GetPrincipalFromContext(r.Context())
	if err != nil {
		h.unauthorizedResponse(w, r)
		return models.Principal{}, false
	}
	return p, true
}

func getIDFromURL(r *http.Request, paramName string) (string, error) {
	id := strings.TrimSpace(chi.URLParam(r, paramName))
	if id == "" {
		return "", fmt.Errorf("missing %s in URL path", paramName)
	}
	return id, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("query parameter %q must be a non-negative integer", name)
	}
	return v, nil
}
