package managed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/godamri/helix-activity/activity"
	"github.com/godamri/helix-activity/crypto"
	"github.com/godamri/helix-activity/feature"
	"github.com/godamri/helix-activity/router"
	"github.com/google/uuid"
)

const (
	fieldID       = "_id"
	fieldRevision = "_rev"

	// ActionResetPassword replaces the first protected field.
	ActionResetPassword = "resetPassword"
)

// FlagChecker is satisfied by *feature.Manager.
type FlagChecker interface {
	IsEnabled(ctx context.Context, key string) bool
}

type object = map[string]any

// Service is a managed-object store whose every operation is recorded
// through an activity.Logger. A logging failure that the logger does not
// suspend aborts the operation before it is committed.
type Service struct {
	store     *MemoryStore
	activity  activity.Logger
	flags     FlagChecker
	hasher    *crypto.Hasher
	protected []string
	validate  *validator.Validate
	logger    *slog.Logger

	// serialises read-modify-write cycles
	mu sync.Mutex
}

func NewService(cfg Config, store *MemoryStore, al activity.Logger, flags FlagChecker, hasher *crypto.Hasher, logger *slog.Logger) *Service {
	if store == nil {
		store = NewMemoryStore()
	}
	if flags == nil {
		flags = feature.NewManager()
	}
	if hasher == nil {
		hasher = crypto.NewHasher(crypto.HashConfig{})
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		activity:  al,
		flags:     flags,
		hasher:    hasher,
		protected: cfg.ProtectedFields,
		validate:  validator.New(),
		logger:    logger.With("component", "managed"),
	}
}

func resourcePath(objectType, id string) string {
	if id == "" {
		return "managed/" + objectType
	}
	return "managed/" + objectType + "/" + id
}

// Create stores a new object. An empty id is replaced by a UUID.
func (s *Service) Create(ctx context.Context, objectType, id string, content json.RawMessage) (json.RawMessage, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if err := s.checkNames(objectType, id); err != nil {
		return nil, err
	}
	obj, err := decodeObject(content)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := resourcePath(objectType, id)
	req := &activity.Request{Type: activity.RequestCreate, ResourcePath: path}

	if existing, ok := s.store.Get(objectType, id); ok {
		s.logFailure(ctx, req, path, existing, nil)
		return nil, router.NewConflict(fmt.Sprintf("object %s already exists", path))
	}

	if err := s.protect(obj, nil); err != nil {
		return nil, err
	}
	obj[fieldID] = id
	obj[fieldRevision] = "1"

	after, err := json.Marshal(obj)
	if err != nil {
		return nil, router.NewInternalError(err)
	}
	if err := s.activity.Log(ctx, req, "create", path, nil, after, activity.StatusSuccess); err != nil {
		return nil, err
	}
	s.store.Put(objectType, id, after)
	return after, nil
}

func (s *Service) Read(ctx context.Context, objectType, id string) (json.RawMessage, error) {
	if err := s.checkNames(objectType, id); err != nil {
		return nil, err
	}
	path := resourcePath(objectType, id)
	obj, ok := s.store.Get(objectType, id)
	if !ok {
		return nil, router.NewNotFound(fmt.Sprintf("object %s not found", path))
	}
	if s.flags.IsEnabled(ctx, feature.ActivityLogReads) {
		req := &activity.Request{Type: activity.RequestRead, ResourcePath: path}
		if err := s.activity.Log(ctx, req, "read", path, nil, obj, activity.StatusSuccess); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

// Query returns every object of the type as a JSON array.
func (s *Service) Query(ctx context.Context, objectType string) (json.RawMessage, error) {
	if err := s.checkNames(objectType, ""); err != nil {
		return nil, err
	}
	result, err := json.Marshal(s.store.List(objectType))
	if err != nil {
		return nil, router.NewInternalError(err)
	}
	if s.flags.IsEnabled(ctx, feature.ActivityLogReads) {
		path := resourcePath(objectType, "")
		req := &activity.Request{Type: activity.RequestQuery, ResourcePath: path}
		if err := s.activity.Log(ctx, req, "query", path, nil, result, activity.StatusSuccess); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Update replaces the object. rev is the expected current revision; empty
// or "*" matches any.
func (s *Service) Update(ctx context.Context, objectType, id, rev string, content json.RawMessage) (json.RawMessage, error) {
	obj, err := decodeObject(content)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, activity.RequestUpdate, "", objectType, id, rev, func(current object) (object, error) {
		return obj, s.protect(obj, current)
	})
}

// Patch merges top-level fields into the object. A null value removes the
// field.
func (s *Service) Patch(ctx context.Context, objectType, id, rev string, patch json.RawMessage) (json.RawMessage, error) {
	changes, err := decodeObject(patch)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, activity.RequestPatch, "", objectType, id, rev, func(current object) (object, error) {
		next := make(object, len(current))
		for k, v := range current {
			next[k] = v
		}
		for k, v := range changes {
			if v == nil {
				delete(next, k)
				continue
			}
			next[k] = v
		}
		return next, s.protect(next, current)
	})
}

// Action runs a named action on an object.
func (s *Service) Action(ctx context.Context, objectType, id, action string, content json.RawMessage) (json.RawMessage, error) {
	switch action {
	case ActionResetPassword:
		if len(s.protected) == 0 {
			return nil, router.NewBadRequest("no protected field configured")
		}
		field := s.protected[0]
		var in map[string]any
		if len(content) > 0 {
			if err := json.Unmarshal(content, &in); err != nil {
				return nil, router.NewBadRequest("action content must be a JSON object")
			}
		}
		secret, _ := in[field].(string)
		if secret == "" {
			return nil, router.NewBadRequest(fmt.Sprintf("%s is required", field))
		}
		return s.mutate(ctx, activity.RequestAction, action, objectType, id, "", func(current object) (object, error) {
			next := make(object, len(current))
			for k, v := range current {
				next[k] = v
			}
			next[field] = secret
			return next, s.protect(next, current)
		})
	default:
		return nil, router.NewBadRequest(fmt.Sprintf("unsupported action %q", action))
	}
}

func (s *Service) Delete(ctx context.Context, objectType, id, rev string) (json.RawMessage, error) {
	if err := s.checkNames(objectType, id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := resourcePath(objectType, id)
	req := &activity.Request{Type: activity.RequestDelete, ResourcePath: path}

	before, current, err := s.load(objectType, id)
	if err != nil {
		return nil, err
	}
	if err := checkRevision(current, rev); err != nil {
		s.logFailure(ctx, req, path, before, nil)
		return nil, err
	}
	if err := s.activity.Log(ctx, req, "delete", path, before, nil, activity.StatusSuccess); err != nil {
		return nil, err
	}
	s.store.Delete(objectType, id)
	return before, nil
}

// mutate loads the object, applies fn, bumps the revision and records the
// change before committing it.
func (s *Service) mutate(ctx context.Context, kind activity.RequestType, action, objectType, id, rev string, fn func(current object) (object, error)) (json.RawMessage, error) {
	if err := s.checkNames(objectType, id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := resourcePath(objectType, id)
	req := &activity.Request{Type: kind, ResourcePath: path, Action: action}

	before, current, err := s.load(objectType, id)
	if err != nil {
		return nil, err
	}
	if err := checkRevision(current, rev); err != nil {
		s.logFailure(ctx, req, path, before, nil)
		return nil, err
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	next[fieldID] = id
	next[fieldRevision] = nextRevision(current)

	after, err := json.Marshal(next)
	if err != nil {
		return nil, router.NewInternalError(err)
	}
	if err := s.activity.Log(ctx, req, string(kind), path, before, after, activity.StatusSuccess); err != nil {
		return nil, err
	}
	s.store.Put(objectType, id, after)
	return after, nil
}

func (s *Service) load(objectType, id string) (json.RawMessage, object, error) {
	raw, ok := s.store.Get(objectType, id)
	if !ok {
		return nil, nil, router.NewNotFound(fmt.Sprintf("object %s not found", resourcePath(objectType, id)))
	}
	obj, err := decodeObject(raw)
	if err != nil {
		return nil, nil, router.NewInternalError(err)
	}
	return raw, obj, nil
}

// logFailure records a rejected operation. The rejection is what the caller
// sees, so a logging failure here is only reported.
func (s *Service) logFailure(ctx context.Context, req *activity.Request, path string, before, after json.RawMessage) {
	if err := s.activity.Log(ctx, req, string(req.Type)+" rejected", path, before, after, activity.StatusFailure); err != nil {
		s.logger.WarnContext(ctx, "Failed to record rejected operation", "object_id", path, "error", err)
	}
}

// protect hashes plaintext values of protected fields. A plaintext that
// matches the hash already stored in prev keeps that hash, so resubmitting
// an unchanged password is not reported as a password change.
func (s *Service) protect(obj, prev object) error {
	for _, field := range s.protected {
		v, ok := obj[field]
		if !ok || v == nil {
			continue
		}
		plain, ok := v.(string)
		if !ok {
			return router.NewBadRequest(fmt.Sprintf("%s must be a string", field))
		}
		if crypto.IsHashed(plain) {
			continue
		}
		if stored, ok := prev[field].(string); ok && crypto.IsHashed(stored) && crypto.CheckPassword(stored, plain) {
			obj[field] = stored
			continue
		}
		hashed, err := s.hasher.HashPassword(plain)
		if err != nil {
			return router.NewBadRequest(err.Error())
		}
		obj[field] = hashed
	}
	return nil
}

func (s *Service) checkNames(objectType, id string) error {
	if err := s.validate.Var(objectType, "required,max=64,excludesall=/?#"); err != nil {
		return router.NewBadRequest(fmt.Sprintf("invalid object type %q", objectType))
	}
	if id == "" {
		return nil
	}
	if err := s.validate.Var(id, "max=255,excludesall=/?#"); err != nil {
		return router.NewBadRequest(fmt.Sprintf("invalid object id %q", id))
	}
	return nil
}

func checkRevision(current object, rev string) error {
	if rev == "" || rev == "*" {
		return nil
	}
	if got, _ := current[fieldRevision].(string); got != rev {
		return router.NewResourceError(http.StatusPreconditionFailed,
			fmt.Sprintf("revision %s does not match current revision %s", rev, got), nil)
	}
	return nil
}

func nextRevision(current object) string {
	rev, _ := current[fieldRevision].(string)
	n, err := strconv.Atoi(rev)
	if err != nil {
		n = 0
	}
	return strconv.Itoa(n + 1)
}

func decodeObject(content json.RawMessage) (object, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return object{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.UseNumber()
	var obj object
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, router.NewBadRequest("object content must be a JSON object")
	}
	return obj, nil
}
