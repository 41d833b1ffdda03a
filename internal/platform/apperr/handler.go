package apperr

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type errorBody struct {
	Code    Code              `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// HTTPErrorHandler converts service errors to structured JSON responses.
// Storage errors hide their cause from the client; everything is logged
// with the request id.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		body := errorResponse{Error: errorBody{
			Code:    CodeStorage,
			Message: "internal server error",
		}}

		if e := As(err); e != nil {
			status = e.HTTPStatus()
			body.Error.Code = e.Code
			body.Error.Fields = e.Fields
			if e.Code == CodeStorage {
				body.Error.Message = "internal server error"
			} else {
				body.Error.Message = e.Message
			}
		} else if he, ok := err.(*echo.HTTPError); ok {
			status = he.Code
			body.Error.Code = codeForStatus(he.Code)
			if msg, ok := he.Message.(string); ok {
				body.Error.Message = msg
			} else {
				body.Error.Message = http.StatusText(he.Code)
			}
		}

		rid, _ := c.Get("request_id").(string)
		evt := logger.Warn()
		if status >= http.StatusInternalServerError {
			evt = logger.Error()
		}
		evt.Err(err).
			Str("request_id", rid).
			Str("method", c.Request().Method).
			Str("path", c.Request().URL.Path).
			Int("status", status).
			Msg("request failed")

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, body)
	}
}

func codeForStatus(status int) Code {
	switch status {
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusForbidden:
		return CodeAuthorization
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		return CodeValidation
	default:
		return CodeStorage
	}
}
