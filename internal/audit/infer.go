package audit

import (
	"strings"

	"github.com/google/uuid"
)

// apiNamespace is the leading URL segment stripped before entity inference.
const apiNamespace = "api"

// EntityRef is the outcome of path-based entity inference. ID is empty when
// the path does not end in an identifier segment.
type EntityRef struct {
	Kind string
	ID   string
}

// InferEntity derives the entity kind and id from a request path.
//
// It strips the leading API namespace segment and the pack-name segment,
// then inspects the final remaining segment: if it looks like an identifier
// (UUID or purely numeric) it becomes the entity id and the preceding
// segment, singularized, the kind; otherwise the final segment itself,
// singularized, is the kind. If nothing remains after the pack name, the
// pack name is the kind.
//
// This is a best-effort heuristic, not a source of truth. Nested resources
// deeper than two levels resolve to the last resource segment, which may
// misclassify the entity for exotic routes.
func InferEntity(path, packName string) EntityRef {
	segments := splitPath(path)

	if len(segments) > 0 && segments[0] == apiNamespace {
		segments = segments[1:]
	}
	if len(segments) > 0 && segments[0] == packName {
		segments = segments[1:]
	}

	if len(segments) == 0 {
		return EntityRef{Kind: packName}
	}

	last := segments[len(segments)-1]
	if looksLikeID(last) {
		kind := packName
		if len(segments) >= 2 {
			kind = Singularize(segments[len(segments)-2])
		}
		return EntityRef{Kind: kind, ID: last}
	}

	return EntityRef{Kind: Singularize(last)}
}

// Singularize strips a plural suffix from a resource segment. It handles the
// common REST cases only ("companies" -> "company", "boxes" -> "box",
// "contacts" -> "contact") and is intentionally not a full inflector.
func Singularize(word string) string {
	switch {
	case strings.HasSuffix(word, "ies") && len(word) > 3:
		return word[:len(word)-3] + "y"
	case strings.HasSuffix(word, "ses"), strings.HasSuffix(word, "xes"), strings.HasSuffix(word, "zes"):
		return word[:len(word)-2]
	case strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss"):
		return word[:len(word)-1]
	default:
		return word
	}
}

func splitPath(path string) []string {
	var segments []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	return segments
}

// looksLikeID reports whether a path segment is a UUID or purely numeric.
func looksLikeID(segment string) bool {
	if segment == "" {
		return false
	}
	if _, err := uuid.Parse(segment); err == nil {
		return true
	}
	for _, r := range segment {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
