package response

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC 7807 problem document, used for end-user facing endpoints.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// Extension members
	Code    string      `json:"code,omitempty"`
	TraceID string      `json:"trace_id,omitempty"`
	Errors  interface{} `json:"errors,omitempty"` // field-level validation errors
}

func (p *Problem) Render(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// ErrorProblem sends an RFC 7807 response. A zero status is derived from code.
func ErrorProblem(w http.ResponseWriter, r *http.Request, status int, code, detail string, errors interface{}) {
	if status == 0 {
		status = MapStatus(code)
	}
	prob := &Problem{
		Type:     "about:blank",
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
		Code:     code,
		TraceID:  getTraceID(r),
		Errors:   errors,
	}
	prob.Render(w)
}
