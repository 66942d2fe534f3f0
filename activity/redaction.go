package activity

import "encoding/json"

// JSONForLog decides whether payload is retained in the record.
// Reads and queries are logged without their objects unless logFullObjects
// is set; every other request type keeps the payload as-is.
func JSONForLog(payload json.RawMessage, requestType RequestType, logFullObjects bool) json.RawMessage {
	if logFullObjects || !requestType.IsReadOnly() {
		if len(payload) == 0 {
			return json.RawMessage("null")
		}
		return payload
	}
	return json.RawMessage("null")
}
