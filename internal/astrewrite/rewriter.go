// Package astrewrite finds the chunk-loading global in a parsed syntax tree
// and rewrites it to a nested namespace access, independent of formatting.
//
// Three structural patterns are recognised:
//
//	var parentJsonpFunction = window["a.b"];          // loader read
//	window["a.b"] = function webpackJsonpCallback() {} // callback install
//	window["a.b"] = window["a.b"] || []                // push-array init
//
// Rewrites are recorded as byte-range edits against the original source so
// that every untouched character, and its source map mapping, is preserved.
package astrewrite

import (
	"fmt"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/file"
	"github.com/dop251/goja/parser"
	"github.com/dop251/goja/token"

	"github.com/fluxbase-eu/jsonpns/internal/asset"
	"github.com/fluxbase-eu/jsonpns/internal/nspath"
	"github.com/fluxbase-eu/jsonpns/internal/textedit"
)

// Names reported in Result.Matched
const (
	PatternLoaderRead      = "loader-read"
	PatternCallbackInstall = "callback-install"
	PatternPushArrayInit   = "push-array-init"
)

// DefaultLoaderNames are the variables a runtime reads the previous loader into
var DefaultLoaderNames = []string{"parentJsonpFunction"}

// Options configures a Rewriter
type Options struct {
	Name        string
	Roots       []string
	LoaderNames []string
}

// Rewriter is safe for concurrent use; every call parses its own tree
type Rewriter struct {
	path    nspath.Path
	roots   map[string]bool
	loaders map[string]bool
}

// New validates opts and returns a Rewriter
func New(opts Options) (*Rewriter, error) {
	p, err := nspath.Parse(opts.Name)
	if err != nil {
		return nil, err
	}

	roots := opts.Roots
	if len(roots) == 0 {
		roots = nspath.DefaultRoots
	}
	loaders := opts.LoaderNames
	if len(loaders) == 0 {
		loaders = DefaultLoaderNames
	}

	r := &Rewriter{
		path:    p,
		roots:   make(map[string]bool, len(roots)),
		loaders: make(map[string]bool, len(loaders)),
	}
	for _, root := range roots {
		r.roots[root] = true
	}
	for _, name := range loaders {
		r.loaders[name] = true
	}
	return r, nil
}

// Rewrite parses and rewrites one asset. On any error the returned result
// carries the asset exactly as supplied.
func (r *Rewriter) Rewrite(a asset.Asset) (res asset.Result, err error) {
	if !r.path.IsNamespaced() {
		return asset.Unchanged(a, asset.EngineAST), nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			res = asset.Unchanged(a, asset.EngineAST)
			err = fmt.Errorf("%w: %s: panic: %v", asset.ErrTransform, a.Name, rec)
		}
	}()

	program, err := parser.ParseFile(nil, a.Name, a.Source, 0, parser.WithDisableSourceMaps)
	if err != nil {
		return asset.Unchanged(a, asset.EngineAST), fmt.Errorf("%w: %s: %w", asset.ErrParse, a.Name, err)
	}

	v := &visitor{Rewriter: r, src: a.Source}
	v.statements(program.Body)
	if len(v.edits) == 0 {
		return asset.Unchanged(a, asset.EngineAST), nil
	}

	out, err := asset.ApplyEdits(a, v.edits)
	if err != nil {
		return asset.Unchanged(a, asset.EngineAST), err
	}
	return asset.Result{Asset: out, Changed: true, Matched: v.matched, Engine: asset.EngineAST}, nil
}

// visitor collects the edits for one tree
type visitor struct {
	*Rewriter
	src     string
	edits   []textedit.Edit
	matched []string
}

// offset converts a parser index into a byte offset of src
func offset(idx file.Idx) int {
	return int(idx) - 1
}

func (v *visitor) replace(n ast.Node, text string) {
	v.edits = append(v.edits, textedit.Replace(offset(n.Idx0()), offset(n.Idx1()), text))
}

func (v *visitor) insert(idx file.Idx, text string) {
	v.edits = append(v.edits, textedit.Insert(offset(idx), text))
}

func (v *visitor) match(pattern string) {
	for _, m := range v.matched {
		if m == pattern {
			return
		}
	}
	v.matched = append(v.matched, pattern)
}

// globalAccess reports whether e is root["<name>"] for a configured root.
// Dotted accesses never match, which keeps the rewrite idempotent.
func (v *visitor) globalAccess(e ast.Expression) (string, bool) {
	b, ok := e.(*ast.BracketExpression)
	if !ok {
		return "", false
	}
	key, ok := b.Member.(*ast.StringLiteral)
	if !ok || key.Value.String() != v.path.String() {
		return "", false
	}

	switch left := b.Left.(type) {
	case *ast.Identifier:
		name := left.Name.String()
		return name, v.roots[name]
	case *ast.ThisExpression:
		return "this", v.roots["this"]
	}
	return "", false
}

// loaderRead rewrites `var parentJsonpFunction = root["a.b"]` to a safe read
func (v *visitor) loaderRead(b *ast.Binding) bool {
	id, ok := b.Target.(*ast.Identifier)
	if !ok || !v.loaders[id.Name.String()] {
		return false
	}
	root, ok := v.globalAccess(b.Initializer)
	if !ok {
		return false
	}

	v.replace(b.Initializer, v.path.SafeRead(root))
	v.match(PatternLoaderRead)
	return true
}

// callbackInstall rewrites `root["a.b"] = <callback>`. As a statement the
// initializers are inserted before it; elsewhere the assignment becomes a
// parenthesised sequence.
func (v *visitor) callbackInstall(n *ast.AssignExpression, statement bool) bool {
	if n.Operator != token.ASSIGN || !isCallback(n.Right) {
		return false
	}
	root, ok := v.globalAccess(n.Left)
	if !ok {
		return false
	}

	dotted := v.path.Dotted(root)
	start := offset(n.Left.Idx0())
	if statement && !v.parenthesized(start) {
		v.insert(n.Left.Idx0(), v.statementPrefix(start, root))
		v.replace(n.Left, dotted)
	} else {
		v.replace(n.Left, "("+strings.Join(v.path.Guards(root), ", ")+", "+dotted)
		v.insert(n.Right.Idx1(), ")")
	}
	v.match(PatternCallbackInstall)
	return true
}

// pushArrayInit rewrites `root["a.b"] = root["a.b"] || []`
func (v *visitor) pushArrayInit(n *ast.AssignExpression) bool {
	if n.Operator != token.ASSIGN {
		return false
	}
	root, ok := v.globalAccess(n.Left)
	if !ok {
		return false
	}
	or, ok := n.Right.(*ast.BinaryExpression)
	if !ok || or.Operator != token.LOGICAL_OR {
		return false
	}
	if other, ok := v.globalAccess(or.Left); !ok || other != root {
		return false
	}
	if _, ok := or.Right.(*ast.ArrayLiteral); !ok {
		return false
	}

	dotted := v.path.Dotted(root)
	v.replace(n.Left, "("+strings.Join(v.path.Guards(root), ", ")+", "+dotted)
	v.replace(or.Left, dotted)
	v.insert(n.Right.Idx1(), ")")
	v.match(PatternPushArrayInit)
	return true
}

func isCallback(e ast.Expression) bool {
	switch n := e.(type) {
	case *ast.FunctionLiteral, *ast.ArrowFunctionLiteral, *ast.Identifier:
		return true
	case *ast.CallExpression:
		// webpackJsonpCallback.bind(null, ...)
		callee, ok := n.Callee.(*ast.DotExpression)
		return ok && callee.Identifier.Name == "bind"
	}
	return false
}

// parenthesized reports whether the statement expression starting at start
// is wrapped in parentheses, in which case nothing can be inserted before it
func (v *visitor) parenthesized(start int) bool {
	for i := start - 1; i >= 0; i-- {
		switch v.src[i] {
		case ' ', '\t', '\n', '\r':
			continue
		case '(':
			return true
		default:
			return false
		}
	}
	return false
}

// statementPrefix renders the initializers to insert at start, indented
// like the statement they precede
func (v *visitor) statementPrefix(start int, root string) string {
	lineStart := strings.LastIndexByte(v.src[:start], '\n') + 1
	indent := v.src[lineStart:start]
	init := v.path.Initializers(root)
	if strings.TrimLeft(indent, " \t") != "" {
		return strings.Join(init, " ") + " "
	}
	return strings.Join(init, "\n"+indent) + "\n" + indent
}
