package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/godamri/helix-activity/crypto"
)

// FieldComparator finds which configured fields differ between two object
// states. Password fields are compared through crypto.SecretEqual so a stored
// hash and the plaintext it was derived from count as unchanged.
type FieldComparator struct {
	watched   []fieldPath
	passwords []fieldPath
}

type fieldPath struct {
	name     string
	segments []string
}

func NewFieldComparator(watched, passwords []string) (*FieldComparator, error) {
	w, err := parsePaths(watched)
	if err != nil {
		return nil, err
	}
	p, err := parsePaths(passwords)
	if err != nil {
		return nil, err
	}
	return &FieldComparator{watched: w, passwords: p}, nil
}

func (c *FieldComparator) ChangedWatchedFields(before, after json.RawMessage) ([]string, error) {
	return changed(c.watched, before, after, reflect.DeepEqual)
}

func (c *FieldComparator) ChangedPasswordFields(before, after json.RawMessage) ([]string, error) {
	return changed(c.passwords, before, after, secretEqual)
}

// changed returns the fields, in configured order, whose values differ.
// Comparison needs two states: if either side is absent nothing is reported.
func changed(paths []fieldPath, before, after json.RawMessage, equal func(a, b any) bool) ([]string, error) {
	out := []string{}
	if len(paths) == 0 || isAbsent(before) || isAbsent(after) {
		return out, nil
	}

	b, err := decode(before)
	if err != nil {
		return nil, fmt.Errorf("audit: before is not valid JSON: %w", err)
	}
	a, err := decode(after)
	if err != nil {
		return nil, fmt.Errorf("audit: after is not valid JSON: %w", err)
	}

	for _, p := range paths {
		bv, bok := p.resolve(b)
		av, aok := p.resolve(a)
		switch {
		case !bok && !aok:
			continue
		case bok != aok:
			out = append(out, p.name)
		case !equal(bv, av):
			out = append(out, p.name)
		}
	}
	return out, nil
}

func secretEqual(a, b any) bool {
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return crypto.SecretEqual(as, bs)
	}
	return reflect.DeepEqual(a, b)
}

func isAbsent(v json.RawMessage) bool {
	trimmed := bytes.TrimSpace(v)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func decode(v json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(v))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// parsePaths accepts JSON pointers ("/address/city"); a missing leading
// slash is tolerated ("mail" == "/mail").
func parsePaths(raw []string) ([]fieldPath, error) {
	paths := make([]fieldPath, 0, len(raw))
	for _, r := range raw {
		name := strings.TrimSpace(r)
		if name == "" || name == "/" {
			return nil, fmt.Errorf("audit: invalid field path %q", r)
		}
		segs := strings.Split(strings.TrimPrefix(name, "/"), "/")
		for i, s := range segs {
			if s == "" {
				return nil, fmt.Errorf("audit: invalid field path %q", r)
			}
			segs[i] = strings.NewReplacer("~1", "/", "~0", "~").Replace(s)
		}
		paths = append(paths, fieldPath{name: name, segments: segs})
	}
	return paths, nil
}

func (p fieldPath) resolve(doc any) (any, bool) {
	cur := doc
	for _, seg := range p.segments {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}
