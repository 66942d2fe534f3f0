package managed

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/godamri/helix-activity/http/response"
	"github.com/godamri/helix-activity/router"
)

const maxObjectSize = 1 << 20

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Routes mounts under /managed:
//
//	POST   /{type}                    create with generated id
//	GET    /{type}                    query
//	PUT    /{type}/{id}               create (If-None-Match: *) or update (If-Match)
//	GET    /{type}/{id}               read
//	PATCH  /{type}/{id}               patch
//	DELETE /{type}/{id}               delete
//	POST   /{type}/{id}?_action=name  action
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/{type}", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.query)
		r.Route("/{id}", func(r chi.Router) {
			r.Put("/", h.put)
			r.Get("/", h.read)
			r.Patch("/", h.patch)
			r.Delete("/", h.delete)
			r.Post("/", h.action)
		})
	})
	return r
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	content, ok := readBody(w, r)
	if !ok {
		return
	}
	obj, err := h.svc.Create(r.Context(), chi.URLParam(r, "type"), "", content)
	h.respond(w, r, http.StatusCreated, obj, err)
}

func (h *Handler) query(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Query(r.Context(), chi.URLParam(r, "type"))
	h.respond(w, r, http.StatusOK, result, err)
}

func (h *Handler) put(w http.ResponseWriter, r *http.Request) {
	content, ok := readBody(w, r)
	if !ok {
		return
	}
	objectType, id := chi.URLParam(r, "type"), chi.URLParam(r, "id")
	if r.Header.Get("If-None-Match") == "*" {
		obj, err := h.svc.Create(r.Context(), objectType, id, content)
		h.respond(w, r, http.StatusCreated, obj, err)
		return
	}
	obj, err := h.svc.Update(r.Context(), objectType, id, ifMatch(r), content)
	h.respond(w, r, http.StatusOK, obj, err)
}

func (h *Handler) read(w http.ResponseWriter, r *http.Request) {
	obj, err := h.svc.Read(r.Context(), chi.URLParam(r, "type"), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, obj, err)
}

func (h *Handler) patch(w http.ResponseWriter, r *http.Request) {
	content, ok := readBody(w, r)
	if !ok {
		return
	}
	obj, err := h.svc.Patch(r.Context(), chi.URLParam(r, "type"), chi.URLParam(r, "id"), ifMatch(r), content)
	h.respond(w, r, http.StatusOK, obj, err)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	obj, err := h.svc.Delete(r.Context(), chi.URLParam(r, "type"), chi.URLParam(r, "id"), ifMatch(r))
	h.respond(w, r, http.StatusOK, obj, err)
}

func (h *Handler) action(w http.ResponseWriter, r *http.Request) {
	action := r.URL.Query().Get("_action")
	if action == "" {
		writeProblem(w, r, router.NewBadRequest("_action is required"))
		return
	}
	content, ok := readBody(w, r)
	if !ok {
		return
	}
	obj, err := h.svc.Action(r.Context(), chi.URLParam(r, "type"), chi.URLParam(r, "id"), action, content)
	h.respond(w, r, http.StatusOK, obj, err)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, body json.RawMessage, err error) {
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	var rev struct {
		Rev string `json:"_rev"`
	}
	if json.Unmarshal(body, &rev) == nil && rev.Rev != "" {
		w.Header().Set("ETag", `"`+rev.Rev+`"`)
	}
	response.JSON(w, r, status, body)
}

func writeProblem(w http.ResponseWriter, r *http.Request, err error) {
	rerr, ok := router.AsResourceError(err)
	if !ok {
		rerr = router.NewInternalError(err)
	}
	detail := rerr.Message
	if rerr.Code >= http.StatusInternalServerError {
		detail = http.StatusText(rerr.Code)
	}
	response.ErrorProblem(w, r, rerr.Code, rerr.Reason, detail, nil)
}

func readBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxObjectSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeProblem(w, r, router.NewResourceError(http.StatusRequestEntityTooLarge, "object too large", nil))
			return nil, false
		}
		writeProblem(w, r, router.NewBadRequest("unable to read request body"))
		return nil, false
	}
	return body, true
}

func ifMatch(r *http.Request) string {
	return strings.Trim(r.Header.Get("If-Match"), `"`)
}
