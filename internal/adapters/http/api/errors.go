package api

import (
	"errors"
	"net/http"

	"github.com/okian/adroute/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrMalformedJSON = errors.New("malformed json body")
	ErrBodyTooLarge  = errors.New("request body too large")

	errTrailingData = errors.New("unexpected data after JSON document")
)

// Messages owned by the HTTP layer.
const (
	MsgAPINotFound   = "API not found"
	MsgMalformedJSON = "Error in parsing JSON"
	MsgBodyTooLarge  = "Request body too large"
	MsgInternal      = "Internal server error"
)

// errorMapping ties a sentinel kind to its response. Order matters: the
// first kind err matches wins.
var errorMapping = []struct {
	kind   error
	status int
	code   string
	msg    string
}{
	{model.ErrStore, http.StatusServiceUnavailable, "store_unavailable", model.MsgStore},
	{model.ErrValidation, http.StatusBadRequest, "invalid_schema", model.MsgInvalidSchema},
	{model.ErrInvalidRequest, http.StatusBadRequest, "bad_request", model.MsgInvalidRequest},
	{model.ErrNotFound, http.StatusNotFound, "not_found", model.MsgBuyerNotFound},
	{model.ErrNoMatch, http.StatusNotFound, "no_match", model.MsgNoMatch},
	{ErrBodyTooLarge, http.StatusRequestEntityTooLarge, "too_large", MsgBodyTooLarge},
	{ErrMalformedJSON, http.StatusInternalServerError, "malformed_json", MsgMalformedJSON},
}

// statusFor maps err to a status, a machine code, and a caller-safe message.
func statusFor(err error) (status int, code, msg string) {
	for _, m := range errorMapping {
		if errors.Is(err, m.kind) {
			return m.status, m.code, model.Message(err, m.msg)
		}
	}
	return http.StatusInternalServerError, "internal_error", MsgInternal
}

func writeErr(w http.ResponseWriter, err error) {
	status, code, msg := statusFor(err)
	writeError(w, status, code, msg)
}
