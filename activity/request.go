package activity

// RequestType is the kind of operation that triggered an activity record.
type RequestType string

const (
	RequestCreate RequestType = "create"
	RequestRead   RequestType = "read"
	RequestUpdate RequestType = "update"
	RequestDelete RequestType = "delete"
	RequestPatch  RequestType = "patch"
	RequestAction RequestType = "action"
	RequestQuery  RequestType = "query"
)

// Request describes the triggering operation.
type Request struct {
	Type         RequestType
	ResourcePath string
	Action       string // set for RequestAction only
}

// IsReadOnly reports whether the request only observes state.
func (t RequestType) IsReadOnly() bool {
	return t == RequestRead || t == RequestQuery
}
