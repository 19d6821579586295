package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/signalsfoundry/eqplatform/core"
	"github.com/signalsfoundry/eqplatform/csg"
	"github.com/signalsfoundry/eqplatform/model"
	"github.com/signalsfoundry/eqplatform/render"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidParameter   = "invalid_parameter"
	CodeDegenerateGeometry = "degenerate_geometry"
	CodeRenderFailed       = "render_failed"
	CodeRenderTimeout      = "render_timeout"
	CodeSerialization      = "serialization_error"
	CodeUnavailable        = "unavailable"
	CodeCanceled           = "canceled"
	CodeInternal           = "internal"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
	// Diagnostic carries the renderer's stderr, when there is one.
	Diagnostic string `json:"diagnostic,omitempty"`
}

// ToHTTPError maps service errors onto an HTTP status and response body.
func ToHTTPError(err error) (int, ErrorResponse) {
	resp := ErrorResponse{Error: err.Error()}

	var perr *model.ParameterError
	var eerr *render.EngineError
	switch {
	case errors.As(err, &perr):
		resp.Code = CodeInvalidParameter
		resp.Field = perr.Field
		return http.StatusBadRequest, resp

	case errors.Is(err, model.ErrInvalidParameter):
		resp.Code = CodeInvalidParameter
		return http.StatusBadRequest, resp

	case errors.Is(err, core.ErrDegenerateGeometry):
		resp.Code = CodeDegenerateGeometry
		return http.StatusUnprocessableEntity, resp

	case errors.As(err, &eerr):
		resp.Diagnostic = eerr.Diagnostic
		if eerr.Kind == render.FailureTimeout {
			resp.Code = CodeRenderTimeout
			return http.StatusGatewayTimeout, resp
		}
		resp.Code = CodeRenderFailed
		return http.StatusBadGateway, resp

	case errors.Is(err, render.ErrRenderEngine):
		resp.Code = CodeRenderFailed
		return http.StatusBadGateway, resp

	case errors.Is(err, csg.ErrSerialization):
		resp.Code = CodeSerialization
		return http.StatusInternalServerError, resp

	case errors.Is(err, context.DeadlineExceeded):
		resp.Code = CodeRenderTimeout
		return http.StatusGatewayTimeout, resp

	case errors.Is(err, context.Canceled):
		resp.Code = CodeCanceled
		return http.StatusServiceUnavailable, resp

	default:
		resp.Code = CodeInternal
		return http.StatusInternalServerError, resp
	}
}

func writeError(w http.ResponseWriter, err error) {
	code, body := ToHTTPError(err)
	writeJSON(w, code, body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
