package router

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/godamri/helix-activity/http/response"
)

const (
	actionParam    = "_action"
	maxContentSize = 1 << 20
)

// NewHTTPHandler exposes conn over HTTP.
//
//	POST /{path}                -> Create
//	POST /{path}?_action={name} -> Action
func NewHTTPHandler(conn Connection) http.Handler {
	r := chi.NewRouter()
	r.Post("/*", func(w http.ResponseWriter, req *http.Request) {
		path := chi.URLParam(req, "*")

		content, err := readContent(w, req)
		if err != nil {
			writeError(w, req, err)
			return
		}

		if action := req.URL.Query().Get(actionParam); action != "" {
			resp, err := conn.Action(req.Context(), ActionRequest{
				ResourcePath: path,
				Action:       action,
				Content:      content,
			})
			if err != nil {
				writeError(w, req, err)
				return
			}
			response.JSON(w, req, http.StatusOK, resp)
			return
		}

		resp, err := conn.Create(req.Context(), CreateRequest{
			ResourcePath: path,
			Content:      content,
		})
		if err != nil {
			writeError(w, req, err)
			return
		}
		response.JSON(w, req, http.StatusCreated, resp)
	})
	return r
}

func readContent(w http.ResponseWriter, req *http.Request) (json.RawMessage, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxContentSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, NewResourceError(http.StatusRequestEntityTooLarge, "request content too large", nil)
		}
		return nil, NewBadRequest("unable to read request content")
	}
	if len(body) == 0 {
		return nil, nil
	}
	if !json.Valid(body) {
		return nil, NewBadRequest("request content is not valid JSON")
	}
	return json.RawMessage(body), nil
}

func writeError(w http.ResponseWriter, req *http.Request, err error) {
	rerr, ok := AsResourceError(err)
	if !ok {
		rerr = NewInternalError(err)
	}
	response.ErrorJSON(w, req, rerr.Code, rerr.Reason, rerr.Message)
}
