package capability

import (
	"fmt"
	"regexp"
	"strings"
)

var segmentPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// Path addresses a capability inside an add-on's capability tree, e.g.
// "setup.setupNewClient.setup" is Path{"setup", "setupNewClient", "setup"}.
type Path []string

// ParsePath parses a dotted capability path. Every segment must be an
// identifier.
func ParsePath(s string) (Path, error) {
	if s == "" {
		return nil, fmt.Errorf("empty capability path")
	}
	segs := strings.Split(s, ".")
	for _, seg := range segs {
		if !segmentPattern.MatchString(seg) {
			return nil, fmt.Errorf("invalid capability path %q: bad segment %q", s, seg)
		}
	}
	return Path(segs), nil
}

// MustParsePath is ParsePath for literals; it panics on malformed input.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// ParsePaths parses every entry of raw.
func ParsePaths(raw []string) ([]Path, error) {
	out := make([]Path, 0, len(raw))
	for _, s := range raw {
		p, err := ParsePath(s)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (p Path) String() string { return strings.Join(p, ".") }

// Equal reports whether p and o name the same capability.
func (p Path) Equal(o Path) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}
