package activity

import "encoding/json"

// RevisionField is the object metadata field holding the revision.
const RevisionField = "_rev"

// Revision returns the revision of after, falling back to before.
// Missing payloads, non-object JSON and non-string revisions are skipped;
// an empty string revision still counts as present.
func Revision(before, after json.RawMessage) (string, bool) {
	if rev, ok := revisionOf(after); ok {
		return rev, true
	}
	return revisionOf(before)
}

func revisionOf(payload json.RawMessage) (string, bool) {
	if len(payload) == 0 {
		return "", false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil || fields == nil {
		return "", false
	}
	raw, ok := fields[RevisionField]
	if !ok {
		return "", false
	}
	var rev string
	if err := json.Unmarshal(raw, &rev); err != nil {
		return "", false
	}
	return rev, true
}
