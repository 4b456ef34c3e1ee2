// Package nspath turns a dotted chunk-loading global into the JavaScript
// needed to realise it as a nested namespace on the global object.
package nspath

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Mode selects what kind of code Resolve produces
type Mode int

const (
	// MutatingInit creates every missing parent object before the access
	MutatingInit Mode = iota
	// SafeRead produces a short-circuit read that never throws
	SafeRead
)

// String returns the flag spelling of the mode
func (m Mode) String() string {
	switch m {
	case MutatingInit:
		return "mutating-init"
	case SafeRead:
		return "safe-read"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses a mode flag value
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "mutating-init", "init", "":
		return MutatingInit, nil
	case "safe-read", "read":
		return SafeRead, nil
	default:
		return 0, fmt.Errorf("invalid mode: %s (valid: mutating-init, safe-read)", s)
	}
}

var (
	// ErrEmptyName is returned for an empty global name
	ErrEmptyName = errors.New("global name is empty")
	// ErrEmptySegment is returned for names like "a..b", ".a" or "a."
	ErrEmptySegment = errors.New("global name contains an empty segment")
	// ErrInvalidSegment is returned when a segment is not a plain identifier
	ErrInvalidSegment = errors.New("global name segment is not a valid identifier")
)

// DefaultRoots are the global objects bundlers address the global through
var DefaultRoots = []string{"window", "self", "globalThis", "this"}

var identifierRegex = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// Path is the ordered list of segments of a dotted global name.
// A Path always has at least one segment.
type Path []string

// Parse splits name on "." and validates every segment
func Parse(name string) (Path, error) {
	if name == "" {
		return nil, ErrEmptyName
	}

	segments := strings.Split(name, ".")
	for _, segment := range segments {
		if segment == "" {
			return nil, fmt.Errorf("%w: %q", ErrEmptySegment, name)
		}
		if !identifierRegex.MatchString(segment) {
			return nil, fmt.Errorf("%w: %q in %q", ErrInvalidSegment, segment, name)
		}
	}
	return Path(segments), nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(name string) Path {
	p, err := Parse(name)
	if err != nil {
		panic(err)
	}
	return p
}

// String joins the segments back into the configured name
func (p Path) String() string {
	return strings.Join(p, ".")
}

// IsNamespaced reports whether the path has parents that need initialising
func (p Path) IsNamespaced() bool {
	return len(p) > 1
}

// Last returns the final segment
func (p Path) Last() string {
	return p[len(p)-1]
}

// qualify prefixes expr with root, or returns expr for an empty root
func qualify(root, expr string) string {
	if root == "" {
		return expr
	}
	return root + "." + expr
}

// prefix returns the dotted access for the first n segments
func (p Path) prefix(root string, n int) string {
	return qualify(root, strings.Join(p[:n], "."))
}

// Dotted returns the non-computed access, e.g. window.a.b.c
func (p Path) Dotted(root string) string {
	return p.prefix(root, len(p))
}

// Bracket returns the flat computed access a bundler emits for the whole
// name, e.g. window["a.b.c"]. The key is quoted the way JSON.stringify does
// for identifier characters.
func (p Path) Bracket(root string) string {
	return root + "[" + strconv.Quote(p.String()) + "]"
}

// Guards returns one `prefix = prefix || {}` expression per proper prefix,
// shallowest first, without a trailing semicolon.
func (p Path) Guards(root string) []string {
	if !p.IsNamespaced() {
		return nil
	}
	guards := make([]string, 0, len(p)-1)
	for i := 1; i < len(p); i++ {
		prefix := p.prefix(root, i)
		guards = append(guards, prefix+" = "+prefix+" || {}")
	}
	return guards
}

// Initializers returns Guards as standalone statements
func (p Path) Initializers(root string) []string {
	guards := p.Guards(root)
	for i := range guards {
		guards[i] += ";"
	}
	return guards
}

// SafeRead returns the logical-AND chain over every prefix ending at the
// full path. It evaluates to a falsy value when an intermediate is missing.
func (p Path) SafeRead(root string) string {
	parts := make([]string, len(p))
	for i := range p {
		parts[i] = p.prefix(root, i+1)
	}
	return strings.Join(parts, " && ")
}

// Resolution is the code produced for one name, root and mode
type Resolution struct {
	Path         Path
	Mode         Mode
	Initializers []string
	Access       string
}

// Resolve builds the initializer statements and final access expression.
// Single-segment names resolve to the bare segment with no initializers.
func Resolve(name, root string, mode Mode) (Resolution, error) {
	p, err := Parse(name)
	if err != nil {
		return Resolution{}, err
	}

	res := Resolution{Path: p, Mode: mode}
	if !p.IsNamespaced() {
		res.Access = p.Last()
		return res, nil
	}

	switch mode {
	case MutatingInit:
		res.Initializers = p.Initializers(root)
		res.Access = p.Dotted(root)
	case SafeRead:
		res.Access = p.SafeRead(root)
	default:
		return Resolution{}, fmt.Errorf("unknown mode %s", mode)
	}
	return res, nil
}
