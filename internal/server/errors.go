package server

import (
	"errors"
	"net/http"

	"github.com/desertthunder/heatx/internal/polyline"
	"github.com/desertthunder/heatx/internal/services"
	"github.com/desertthunder/heatx/internal/shared"
	"github.com/go-chi/render"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
)

// ErrResponse is the JSON body of every failed API request.
type ErrResponse struct {
	Err            error `json:"-"` // low-level runtime error
	HTTPStatusCode int   `json:"-"` // http response status code

	StatusText    string           `json:"status"`               // user-level status message
	ErrorText     string           `json:"error,omitempty"`      // application-level error message
	ErrValidation []string         `json:"validation,omitempty"` // translated validation failures
	Details       *UpstreamDetails `json:"details,omitempty"`    // upstream failure, when one caused the error
}

// UpstreamDetails describes a failed upstream response.
type UpstreamDetails struct {
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
}

func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func ErrInvalidRequest(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusBadRequest,
		StatusText:     "Invalid request.",
		ErrorText:      err.Error(),
	}
}

func ErrValidation(err error, errV []error) render.Renderer {
	vv := []string{}
	for _, v := range errV {
		vv = append(vv, v.Error())
	}
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusBadRequest,
		StatusText:     "Invalid request.",
		ErrorText:      err.Error(),
		ErrValidation:  vv,
	}
}

func ErrUnauthorized(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusUnauthorized,
		StatusText:     "Unauthorized.",
		ErrorText:      err.Error(),
	}
}

func ErrUnprocessable(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusUnprocessableEntity,
		StatusText:     "Unprocessable entity.",
		ErrorText:      err.Error(),
	}
}

func ErrUnavailable(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusServiceUnavailable,
		StatusText:     "Service unavailable.",
		ErrorText:      err.Error(),
	}
}

func ErrInternalServerError(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusInternalServerError,
		StatusText:     "Internal server error.",
		ErrorText:      err.Error(),
	}
}

// ErrUpstream propagates the status of a failed upstream call.
func ErrUpstream(message string, apiErr *services.APIError) render.Renderer {
	return &ErrResponse{
		Err:            apiErr,
		HTTPStatusCode: apiErr.StatusCode,
		StatusText:     "Upstream request failed.",
		ErrorText:      message,
		Details:        &UpstreamDetails{Status: apiErr.StatusCode, Message: apiErr.Body},
	}
}

// errorRenderer maps err onto a response. message describes the failed operation for upstream errors.
func errorRenderer(message string, err error) render.Renderer {
	var apiErr *services.APIError
	switch {
	case errors.As(err, &apiErr):
		return ErrUpstream(message, apiErr)
	case errors.Is(err, shared.ErrNotAuthenticated), errors.Is(err, shared.ErrTokenExpired):
		return ErrUnauthorized(err)
	case errors.Is(err, shared.ErrMissingArgument), errors.Is(err, shared.ErrInvalidArgument):
		return ErrInvalidRequest(err)
	case errors.Is(err, polyline.ErrMalformedPolyline), errors.Is(err, polyline.ErrInvalidCoordinate),
		errors.Is(err, polyline.ErrInvalidPrecision):
		return ErrUnprocessable(err)
	case errors.Is(err, shared.ErrServiceUnavailable):
		return ErrUnavailable(err)
	default:
		return ErrInternalServerError(err)
	}
}

func translateError(err error, trans ut.Translator) (errs []error) {
	if err == nil {
		return nil
	}
	var validatorErrs validator.ValidationErrors
	if !errors.As(err, &validatorErrs) {
		return []error{err}
	}
	for _, e := range validatorErrs {
		errs = append(errs, errors.New(e.Translate(trans)))
	}
	return errs
}
