package response

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/godamri/helix-activity/pkg/contextx"
	"github.com/google/uuid"
)

type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	Meta    Meta        `json:"meta"`
}

// RawEnvelope is the decoding side of Envelope, used by clients that
// need to defer interpretation of Data.
type RawEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	Meta    Meta            `json:"meta"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Meta struct {
	TraceID       string `json:"trace_id"`
	TransactionID string `json:"transaction_id,omitempty"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	env := Envelope{
		Success: true,
		Data:    data,
		Meta:    metaFor(r),
	}
	write(w, status, env)
}

func ErrorJSON(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	env := Envelope{
		Success: false,
		Error: &Error{
			Code:    code,
			Message: message,
		},
		Meta: metaFor(r),
	}
	write(w, status, env)
}

func write(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already flushed; an encode failure (broken pipe) cannot be reported.
	_ = json.NewEncoder(w).Encode(payload)
}

func metaFor(r *http.Request) Meta {
	txID, _ := contextx.LookupTransactionID(r.Context())
	return Meta{TraceID: getTraceID(r), TransactionID: txID}
}

func getTraceID(r *http.Request) string {
	if tid := contextx.GetTraceID(r.Context()); tid != "untriaged" {
		return tid
	}
	tid := r.Header.Get("X-Trace-Id")
	if tid == "" {
		tid = strings.ReplaceAll(uuid.New().String(), "-", "")
	}
	return tid
}
