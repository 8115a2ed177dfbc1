// Package industrial classifies OSM buildings as industrial from their own
// tags and from the land-use areas that contain them.
package industrial

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Kind identifies the OSM element type an ID refers to. Refs are only unique
// within a kind.
type Kind uint8

// Element kinds that can carry building or landuse tags.
const (
	KindWay Kind = iota + 1
	KindRelation
)

// String returns the OSM name of the kind.
func (k Kind) String() string {
	switch k {
	case KindWay:
		return "way"
	case KindRelation:
		return "relation"
	default:
		return "unknown"
	}
}

// ParseKind converts an OSM element type name into a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "way", "w":
		return KindWay, nil
	case "relation", "r":
		return KindRelation, nil
	default:
		return 0, eris.Errorf("industrial: unknown element kind %q (valid: way, relation)", s)
	}
}

// ID is the identity key of a building or area record. Two IDs are equal
// when kind and ref are equal; the ref is never interpreted as a number.
type ID struct {
	Kind Kind
	Ref  int64
}

// WayID returns the ID of an OSM way.
func WayID(ref int64) ID { return ID{Kind: KindWay, Ref: ref} }

// RelationID returns the ID of an OSM relation.
func RelationID(ref int64) ID { return ID{Kind: KindRelation, Ref: ref} }

// String renders the ID as "way/123".
func (id ID) String() string {
	return id.Kind.String() + "/" + strconv.FormatInt(id.Ref, 10)
}

// ParseID parses the output of ID.String.
func ParseID(s string) (ID, error) {
	kind, ref, ok := strings.Cut(s, "/")
	if !ok {
		return ID{}, eris.Errorf("industrial: malformed id %q", s)
	}
	k, err := ParseKind(kind)
	if err != nil {
		return ID{}, err
	}
	n, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return ID{}, eris.Wrapf(err, "industrial: malformed id ref %q", s)
	}
	return ID{Kind: k, Ref: n}, nil
}

// less orders IDs by kind, then ref. Used only to make output deterministic.
func (id ID) less(o ID) bool {
	if id.Kind != o.Kind {
		return id.Kind < o.Kind
	}
	return id.Ref < o.Ref
}

// Tags is a record's key/value tag mapping.
type Tags map[string]string
