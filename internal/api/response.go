package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/erazemk/oder/internal/custody"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, errorBody{Error: message})
}

type errorBody struct {
	Error   string       `json:"error"`
	Kind    custody.Kind `json:"kind,omitempty"`
	AssetID string       `json:"asset_id,omitempty"`
	OrderID string       `json:"order_id,omitempty"`
}

// custodyError renders an error from the custody service. Internal errors
// are logged and replaced by a generic message.
func custodyError(w http.ResponseWriter, op string, err error) {
	var ce *custody.Error
	if !errors.As(err, &ce) || ce.Kind == custody.KindInternal {
		slog.Error(op+" failed", "error", err)
		jsonResponse(w, http.StatusInternalServerError, errorBody{Error: "internal error", Kind: custody.KindInternal})
		return
	}

	status := http.StatusInternalServerError
	msg := ce.Message
	switch ce.Kind {
	case custody.KindValidation:
		status = http.StatusBadRequest
	case custody.KindDataIntegrity:
		status = http.StatusConflict
	case custody.KindConflict:
		status = http.StatusConflict
		msg = "the records changed while saving, please try again"
		slog.Warn(op+" gave up after conflicts", "error", err)
	case custody.KindNotFound:
		status = http.StatusNotFound
	}
	jsonResponse(w, status, errorBody{Error: msg, Kind: ce.Kind, AssetID: ce.AssetID, OrderID: ce.OrderID})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}
