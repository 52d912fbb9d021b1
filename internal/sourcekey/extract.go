package sourcekey

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/roach88/streamscope/internal/ir"
)

// DefaultCalls are the tracked function names recognised by default.
var DefaultCalls = []string{"Track", "TrackSubject", "TrackFunc"}

// MaxFileSize bounds the size of a source file Extract will parse.
const MaxFileSize = 4 << 20

// CallSite is one tracked call found in a source file.
type CallSite struct {
	Key     string `json:"key" yaml:"key"`
	File    string `json:"file" yaml:"file"`
	Func    string `json:"func,omitempty" yaml:"func,omitempty"`
	Target  string `json:"target,omitempty" yaml:"target,omitempty"`
	Call    string `json:"call" yaml:"call"`
	Ordinal int    `json:"ordinal" yaml:"ordinal"`
	Line    int    `json:"line" yaml:"line"`
}

// Extractor finds tracked call sites in Go source.
type Extractor struct {
	calls map[string]bool
}

// NewExtractor returns an Extractor for the given call names, or for
// DefaultCalls when none are given.
func NewExtractor(calls ...string) *Extractor {
	if len(calls) == 0 {
		calls = DefaultCalls
	}
	e := &Extractor{calls: make(map[string]bool, len(calls))}
	for _, c := range calls {
		e.calls[c] = true
	}
	return e
}

// Extract parses content as the Go file named file and returns its tracked
// call sites in source order.
func (e *Extractor) Extract(ctx context.Context, file string, content []byte) ([]CallSite, error) {
	if len(content) > MaxFileSize {
		return nil, fmt.Errorf("%s: file exceeds %d bytes", file, MaxFileSize)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(golang.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, nil
	}

	file = filepath.ToSlash(file)
	var sites []CallSite
	ordinals := make(map[string]int)

	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n.Type() == "call_expression" {
			if call, ok := e.trackedCall(n, content); ok {
				site := CallSite{
					File:   file,
					Func:   enclosingDecl(n, content),
					Target: assignTarget(n, content),
					Call:   call,
					Line:   int(n.StartPoint().Row) + 1,
				}
				group := site.Func + "\x00" + site.Target + "\x00" + site.Call
				site.Ordinal = ordinals[group]
				ordinals[group]++

				key, err := ir.SourceKey(site.describe())
				if err != nil {
					return nil, fmt.Errorf("%s:%d: %w", file, site.Line, err)
				}
				site.Key = key
				sites = append(sites, site)
			}
		}

		for i := int(n.ChildCount()) - 1; i >= 0; i-- {
			if c := n.Child(i); c != nil {
				stack = append(stack, c)
			}
		}
	}
	return sites, nil
}

// describe is the normalized description the key is hashed from.
func (s CallSite) describe() ir.Object {
	return ir.Object{
		"file":    ir.String(s.File),
		"func":    ir.String(s.Func),
		"target":  ir.String(s.Target),
		"call":    ir.String(s.Call),
		"ordinal": ir.Int(s.Ordinal),
	}
}

// ExtractFile reads and extracts one file. The recorded path is made
// relative to root.
func (e *Extractor) ExtractFile(ctx context.Context, root, path string) ([]CallSite, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return e.Extract(ctx, relPath(root, path), content)
}

// ExtractDir extracts every Go file under root. Hidden directories,
// directories starting with an underscore, vendor and testdata are
// skipped.
func (e *Extractor) ExtractDir(ctx context.Context, root string) ([]CallSite, error) {
	var sites []CallSite
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !isGoFile(path) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		found, err := e.ExtractFile(ctx, root, path)
		if err != nil {
			return err
		}
		sites = append(sites, found...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sites, nil
}

// trackedCall reports the tracked name called by n. Both Track(...) and
// reg.Track(...) forms are recognised.
func (e *Extractor) trackedCall(n *sitter.Node, content []byte) (string, bool) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return "", false
	}
	var name string
	switch fn.Type() {
	case "identifier":
		name = fn.Content(content)
	case "selector_expression":
		field := fn.ChildByFieldName("field")
		if field == nil {
			return "", false
		}
		name = field.Content(content)
	default:
		return "", false
	}
	return name, e.calls[name]
}

// enclosingDecl names the top-level declaration containing n: the function
// name, Type.Method for methods, or the package-level variable names.
func enclosingDecl(n *sitter.Node, content []byte) string {
	for p := n.Parent(); p != nil; p = p.Parent() {
		switch p.Type() {
		case "function_declaration":
			if name := p.ChildByFieldName("name"); name != nil {
				return name.Content(content)
			}
			return ""
		case "method_declaration":
			name := p.ChildByFieldName("name")
			if name == nil {
				return ""
			}
			if recv := receiverType(p.ChildByFieldName("receiver"), content); recv != "" {
				return recv + "." + name.Content(content)
			}
			return name.Content(content)
		case "var_declaration", "const_declaration":
			if p.Parent() != nil && p.Parent().Type() == "source_file" {
				return "var"
			}
		}
	}
	return ""
}

// receiverType returns the receiver's type name without pointer or type
// parameters.
func receiverType(params *sitter.Node, content []byte) string {
	if params == nil {
		return ""
	}
	for i := 0; i < int(params.NamedChildCount()); i++ {
		decl := params.NamedChild(i)
		if decl.Type() != "parameter_declaration" {
			continue
		}
		typ := decl.ChildByFieldName("type")
		if typ == nil {
			return ""
		}
		text := normalize(typ.Content(content))
		text = strings.TrimPrefix(text, "*")
		if i := strings.IndexByte(text, '['); i >= 0 {
			text = text[:i]
		}
		return text
	}
	return ""
}

// assignTarget returns the left-hand side of the assignment whose value
// contains n, or "" when the call is not assigned. The search stops at
// statement and function boundaries.
func assignTarget(n *sitter.Node, content []byte) string {
	for p := n.Parent(); p != nil; p = p.Parent() {
		switch p.Type() {
		case "short_var_declaration", "assignment_statement":
			if left := p.ChildByFieldName("left"); left != nil {
				return normalize(left.Content(content))
			}
			return ""
		case "var_spec":
			var names []string
			for i := 0; i < int(p.NamedChildCount()); i++ {
				c := p.NamedChild(i)
				if c.Type() == "identifier" {
					names = append(names, c.Content(content))
				}
			}
			return strings.Join(names, ",")
		case "func_literal", "function_declaration", "method_declaration",
			"block", "source_file", "return_statement", "expression_statement",
			"go_statement", "defer_statement", "if_statement", "for_statement":
			return ""
		}
	}
	return ""
}

// normalize removes all whitespace.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func relPath(root, path string) string {
	if root == "" {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func isGoFile(path string) bool {
	return strings.HasSuffix(path, ".go")
}

var skippedDirs = []string{"vendor", "testdata", "node_modules"}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || slices.Contains(skippedDirs, name)
}
