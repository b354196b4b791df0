package cli

import (
	"fmt"
	"hash/fnv"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BoonLang/boon-go/internal/persist"
	"github.com/BoonLang/boon-go/internal/tree"
	"github.com/BoonLang/boon-go/internal/value"
)

// Program files are YAML documents describing one reactive program. The
// loader resolves every name to a binding ID and assigns structural
// persistence IDs, producing the resolved tree the engine consumes.
//
// Expression nodes carry exactly one of the following keys:
//
//	number, text, bool, tag    scalar literals
//	fmt                        text with {name} interpolation
//	ref                        reference to a bound name
//	link                       event-binding declaration (inside let)
//	set                        connect the piped producer to a link
//	passed, skip               the piped tick / the skip sentinel
//	list, object, tagged       collections and records
//	latest, hold, then,
//	when, while, pipe          combinators
//	call                       builtin or user function call
//	block                      local bindings
//
// State-capable constructs (hold, list) take `persist: true`; the
// document then needs a stable `persist_root` ULID so state survives
// restarts under the same identity.

// LoadError is a structured program-loading diagnostic.
type LoadError struct {
	Code    string
	Path    string
	Message string
}

func (e *LoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeNotFound    = "E002" // Path not found
	ErrCodeParseFailed = "E003" // YAML parse failed
	ErrCodeBadExpr     = "E004" // Malformed expression node
	ErrCodeUnboundName = "E005" // Reference to an unknown name
	ErrCodePersistRoot = "E006" // Persistence requested without a root ID
	ErrCodeBuildFailed = "E007" // Graph construction failed
)

type programYAML struct {
	Name        string   `yaml:"name"`
	PersistRoot string   `yaml:"persist_root"`
	Program     exprYAML `yaml:"program"`
}

type exprYAML struct {
	Number *float64 `yaml:"number"`
	Text   *string  `yaml:"text"`
	Bool   *bool    `yaml:"bool"`
	Tag    *string  `yaml:"tag"`
	Fmt    *string  `yaml:"fmt"`
	Ref    *string  `yaml:"ref"`
	Link   bool     `yaml:"link"`
	Set    *string  `yaml:"set"`
	Passed bool     `yaml:"passed"`
	Skip   bool     `yaml:"skip"`

	List   *listYAML   `yaml:"list"`
	Object []fieldYAML `yaml:"object"`
	Tagged *taggedYAML `yaml:"tagged"`

	Latest []exprYAML `yaml:"latest"`
	Hold   *holdYAML  `yaml:"hold"`
	Then   *exprYAML  `yaml:"then"`
	When   []armYAML  `yaml:"when"`
	While  []armYAML  `yaml:"while"`
	Pipe   []exprYAML `yaml:"pipe"`
	Call   *callYAML  `yaml:"call"`
	Block  *blockYAML `yaml:"block"`
}

type listYAML struct {
	Items   []exprYAML `yaml:"items"`
	Persist bool       `yaml:"persist"`
}

type fieldYAML struct {
	Name string   `yaml:"name"`
	Expr exprYAML `yaml:"expr"`
}

type taggedYAML struct {
	Tag    string      `yaml:"tag"`
	Fields []fieldYAML `yaml:"fields"`
}

type holdYAML struct {
	State   string   `yaml:"state"`
	Body    exprYAML `yaml:"body"`
	Persist bool     `yaml:"persist"`
}

type armYAML struct {
	Match patternYAML `yaml:"match"`
	Body  exprYAML    `yaml:"body"`
}

type callYAML struct {
	Path string    `yaml:"path"`
	Args []argYAML `yaml:"args"`
}

type argYAML struct {
	Name string    `yaml:"name"`
	Expr *exprYAML `yaml:"expr"`
	Fn   *fnYAML   `yaml:"fn"`
}

type fnYAML struct {
	Param string   `yaml:"param"`
	Body  exprYAML `yaml:"body"`
}

type blockYAML struct {
	Let []letYAML `yaml:"let"`
	Out exprYAML  `yaml:"out"`
}

type letYAML struct {
	Name string   `yaml:"name"`
	Expr exprYAML `yaml:"expr"`
}

type patternYAML struct {
	Any    bool          `yaml:"any"`
	Bind   *string       `yaml:"bind"`
	Number *float64      `yaml:"number"`
	Text   *string       `yaml:"text"`
	Bool   *bool         `yaml:"bool"`
	Tag    *string       `yaml:"tag"`
	Tagged *tpatYAML     `yaml:"tagged"`
	Object []pfYAML      `yaml:"object"`
	List   []patternYAML `yaml:"list"`
}

type tpatYAML struct {
	Tag    string   `yaml:"tag"`
	Fields []pfYAML `yaml:"fields"`
}

type pfYAML struct {
	Name  string       `yaml:"name"`
	Bind  *string      `yaml:"bind"`
	Match *patternYAML `yaml:"match"`
}

// LoadProgram reads, parses and resolves one program file.
func LoadProgram(path string) (*tree.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &LoadError{Code: ErrCodeNotFound, Path: path, Message: "program file not found"}
		}
		return nil, &LoadError{Code: ErrCodeGeneric, Path: path, Message: err.Error()}
	}
	return ParseProgram(data, path)
}

// ParseProgram resolves a program document from raw YAML bytes.
func ParseProgram(data []byte, path string) (*tree.Program, error) {
	var doc programYAML
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &LoadError{Code: ErrCodeParseFailed, Path: path, Message: err.Error()}
	}

	r := &resolver{path: path}
	if doc.PersistRoot != "" {
		root, err := persist.Parse(doc.PersistRoot)
		if err != nil {
			return nil, &LoadError{Code: ErrCodePersistRoot, Path: path,
				Message: fmt.Sprintf("invalid persist_root: %v", err)}
		}
		r.root = root
	}

	expr, err := r.expr(doc.Program, scope{}, r.root)
	if err != nil {
		return nil, err
	}
	return &tree.Program{Root: expr, Name: doc.Name, Persist: r.root}, nil
}

// scope is the loader's lexical environment, a persistent chain like the
// engine's binding env.
type scope struct {
	prev *scope
	name string
	id   tree.BindingID
}

func (s scope) bind(name string, id tree.BindingID) scope {
	prev := s
	return scope{prev: &prev, name: name, id: id}
}

func (s scope) lookup(name string) (tree.BindingID, bool) {
	for cur := &s; cur != nil; cur = cur.prev {
		if cur.name == name {
			return cur.id, true
		}
	}
	return tree.NoBinding, false
}

// resolver assigns binding IDs and structural persistence IDs while
// translating the YAML surface into the resolved tree.
type resolver struct {
	path string
	next tree.BindingID
	root persist.ID
}

func (r *resolver) newBinding() tree.BindingID {
	r.next++
	return r.next
}

// persistID validates that a state identity is available for a
// persist-capable construct. The identity itself is the construct's
// structural path: let bindings contribute a segment derived from their
// name, nested children a positional segment. Adding or reordering
// sibling declarations therefore leaves existing state in place.
func (r *resolver) persistID(pid persist.ID) (persist.ID, error) {
	if r.root.IsZero() {
		return persist.Zero, &LoadError{Code: ErrCodePersistRoot, Path: r.path,
			Message: "persist: true requires a persist_root ULID at the document top level"}
	}
	return pid, nil
}

// nameSeg folds a declaration name into a path segment. Segment 0 is
// reserved for unnamed children such as a block's output expression.
func nameSeg(name string) int {
	h := fnv.New32a()
	h.Write([]byte(name))
	return int(h.Sum32()&0x7fffffff)%0x7ffffffe + 1
}

func (r *resolver) errf(code, format string, args ...any) error {
	return &LoadError{Code: code, Path: r.path, Message: fmt.Sprintf(format, args...)}
}

func (r *resolver) expr(x exprYAML, sc scope, pid persist.ID) (tree.Expr, error) {
	switch {
	case x.Number != nil:
		return tree.Lit{Value: value.Number(*x.Number)}, nil
	case x.Text != nil:
		return tree.Lit{Value: value.Text(*x.Text)}, nil
	case x.Bool != nil:
		return tree.Lit{Value: value.Bool(*x.Bool)}, nil
	case x.Tag != nil:
		return tree.Lit{Value: value.Tag(*x.Tag)}, nil
	case x.Fmt != nil:
		return r.fmtExpr(*x.Fmt, sc)
	case x.Ref != nil:
		id, ok := sc.lookup(*x.Ref)
		if !ok {
			return nil, r.errf(ErrCodeUnboundName, "reference to unbound name %q", *x.Ref)
		}
		return tree.Ref{Name: *x.Ref, Binding: id}, nil
	case x.Link:
		return nil, r.errf(ErrCodeBadExpr, "link declarations are only valid as let bindings")
	case x.Set != nil:
		id, ok := sc.lookup(*x.Set)
		if !ok {
			return nil, r.errf(ErrCodeUnboundName, "set of unbound name %q", *x.Set)
		}
		return tree.LinkSetter{Name: *x.Set, Binding: id}, nil
	case x.Passed:
		return tree.Passed{}, nil
	case x.Skip:
		return tree.Skip{}, nil

	case x.List != nil:
		items := make([]tree.Expr, len(x.List.Items))
		for i, it := range x.List.Items {
			e, err := r.expr(it, sc, pid.Child(i))
			if err != nil {
				return nil, err
			}
			items[i] = e
		}
		lit := tree.ListLit{Items: items}
		if x.List.Persist {
			id, err := r.persistID(pid)
			if err != nil {
				return nil, err
			}
			lit.Persist = id
		}
		return lit, nil

	case x.Object != nil:
		fields, err := r.fields(x.Object, sc, pid)
		if err != nil {
			return nil, err
		}
		return tree.ObjectLit{Fields: fields}, nil

	case x.Tagged != nil:
		fields, err := r.fields(x.Tagged.Fields, sc, pid)
		if err != nil {
			return nil, err
		}
		return tree.TaggedLit{Tag: x.Tagged.Tag, Fields: fields}, nil

	case x.Latest != nil:
		inputs := make([]tree.Expr, len(x.Latest))
		for i, in := range x.Latest {
			e, err := r.expr(in, sc, pid.Child(i))
			if err != nil {
				return nil, err
			}
			inputs[i] = e
		}
		return tree.Latest{Inputs: inputs}, nil

	case x.Hold != nil:
		h := tree.Hold{StateName: x.Hold.State, State: r.newBinding()}
		if x.Hold.Persist {
			id, err := r.persistID(pid)
			if err != nil {
				return nil, err
			}
			h.Persist = id
		}
		body, err := r.expr(x.Hold.Body, sc.bind(x.Hold.State, h.State), pid.Child(0))
		if err != nil {
			return nil, err
		}
		h.Body = body
		return h, nil

	case x.Then != nil:
		body, err := r.expr(*x.Then, sc, pid.Child(0))
		if err != nil {
			return nil, err
		}
		return tree.Then{Body: body}, nil

	case x.When != nil:
		arms, err := r.arms(x.When, sc, pid)
		if err != nil {
			return nil, err
		}
		return tree.When{Arms: arms}, nil

	case x.While != nil:
		arms, err := r.arms(x.While, sc, pid)
		if err != nil {
			return nil, err
		}
		return tree.While{Arms: arms}, nil

	case x.Pipe != nil:
		if len(x.Pipe) < 2 {
			return nil, r.errf(ErrCodeBadExpr, "pipe needs at least two stages, got %d", len(x.Pipe))
		}
		cur, err := r.expr(x.Pipe[0], sc, pid.Child(0))
		if err != nil {
			return nil, err
		}
		for i, stage := range x.Pipe[1:] {
			to, err := r.expr(stage, sc, pid.Child(i+1))
			if err != nil {
				return nil, err
			}
			cur = tree.Pipe{From: cur, To: to}
		}
		return cur, nil

	case x.Call != nil:
		return r.call(x.Call, sc, pid)

	case x.Block != nil:
		return r.block(x.Block, sc, pid)

	default:
		return nil, r.errf(ErrCodeBadExpr, "expression node carries no recognized key")
	}
}

func (r *resolver) fields(defs []fieldYAML, sc scope, pid persist.ID) ([]tree.FieldDef, error) {
	out := make([]tree.FieldDef, len(defs))
	for i, fd := range defs {
		e, err := r.expr(fd.Expr, sc, pid.Child(nameSeg(fd.Name)))
		if err != nil {
			return nil, err
		}
		out[i] = tree.FieldDef{Name: fd.Name, Expr: e}
	}
	return out, nil
}

func (r *resolver) arms(raw []armYAML, sc scope, pid persist.ID) ([]tree.Arm, error) {
	arms := make([]tree.Arm, len(raw))
	for i, a := range raw {
		pat, armScope, err := r.pattern(a.Match, sc)
		if err != nil {
			return nil, err
		}
		body, err := r.expr(a.Body, armScope, pid.Child(i))
		if err != nil {
			return nil, err
		}
		arms[i] = tree.Arm{Pattern: pat, Body: body}
	}
	return arms, nil
}

func (r *resolver) call(c *callYAML, sc scope, pid persist.ID) (tree.Expr, error) {
	if c.Path == "" {
		return nil, r.errf(ErrCodeBadExpr, "call needs a builtin path")
	}
	args := make([]tree.Arg, len(c.Args))
	for i, a := range c.Args {
		apid := pid.Child(nameSeg(a.Name))
		switch {
		case a.Fn != nil:
			b := r.newBinding()
			body, err := r.expr(a.Fn.Body, sc.bind(a.Fn.Param, b), apid)
			if err != nil {
				return nil, err
			}
			args[i] = tree.Arg{Name: a.Name, Expr: tree.Func{
				Name:   a.Name,
				Params: []tree.Param{{Name: a.Fn.Param, Binding: b}},
				Body:   body,
			}}
		case a.Expr != nil:
			e, err := r.expr(*a.Expr, sc, apid)
			if err != nil {
				return nil, err
			}
			args[i] = tree.Arg{Name: a.Name, Expr: e}
		default:
			return nil, r.errf(ErrCodeBadExpr, "argument %q of %s carries neither expr nor fn", a.Name, c.Path)
		}
	}
	return tree.Call{Path: c.Path, Args: args}, nil
}

func (r *resolver) block(b *blockYAML, sc scope, pid persist.ID) (tree.Expr, error) {
	vars := make([]tree.BlockVar, len(b.Let))
	for i, lv := range b.Let {
		id := r.newBinding()
		var e tree.Expr
		if lv.Expr.Link {
			e = tree.Link{Name: lv.Name, Binding: id}
		} else {
			var err error
			e, err = r.expr(lv.Expr, sc, pid.Child(nameSeg(lv.Name)))
			if err != nil {
				return nil, err
			}
		}
		vars[i] = tree.BlockVar{Name: lv.Name, Binding: id, Expr: e}
		sc = sc.bind(lv.Name, id)
	}
	out, err := r.expr(b.Out, sc, pid.Child(0))
	if err != nil {
		return nil, err
	}
	return tree.Block{Vars: vars, Output: out}, nil
}

// fmtExpr parses "Total: {count}" into a text expression whose embeds are
// references to bound names.
func (r *resolver) fmtExpr(s string, sc scope) (tree.Expr, error) {
	var parts []tree.TextPart
	for len(s) > 0 {
		open := strings.IndexByte(s, '{')
		if open < 0 {
			parts = append(parts, tree.TextPart{Fixed: s})
			break
		}
		if open > 0 {
			parts = append(parts, tree.TextPart{Fixed: s[:open]})
		}
		rest := s[open+1:]
		clos := strings.IndexByte(rest, '}')
		if clos < 0 {
			return nil, r.errf(ErrCodeBadExpr, "fmt string has an unclosed '{'")
		}
		name := strings.TrimSpace(rest[:clos])
		id, ok := sc.lookup(name)
		if !ok {
			return nil, r.errf(ErrCodeUnboundName, "fmt embeds unbound name %q", name)
		}
		parts = append(parts, tree.TextPart{Embed: tree.Ref{Name: name, Binding: id}})
		s = rest[clos+1:]
	}
	if len(parts) == 0 {
		parts = []tree.TextPart{{Fixed: ""}}
	}
	return tree.TextExpr{Parts: parts}, nil
}

func (r *resolver) pattern(p patternYAML, sc scope) (tree.Pattern, scope, error) {
	switch {
	case p.Any:
		return tree.PatWildcard{}, sc, nil
	case p.Bind != nil:
		id := r.newBinding()
		return tree.PatAlias{Name: *p.Bind, Binding: id}, sc.bind(*p.Bind, id), nil
	case p.Number != nil:
		return tree.PatLit{Value: value.Number(*p.Number)}, sc, nil
	case p.Text != nil:
		return tree.PatLit{Value: value.Text(*p.Text)}, sc, nil
	case p.Bool != nil:
		return tree.PatLit{Value: value.Bool(*p.Bool)}, sc, nil
	case p.Tag != nil:
		return tree.PatTagged{Tag: *p.Tag}, sc, nil
	case p.Tagged != nil:
		fields, out, err := r.patFields(p.Tagged.Fields, sc)
		if err != nil {
			return nil, sc, err
		}
		return tree.PatTagged{Tag: p.Tagged.Tag, Fields: fields}, out, nil
	case p.Object != nil:
		fields, out, err := r.patFields(p.Object, sc)
		if err != nil {
			return nil, sc, err
		}
		return tree.PatObject{Fields: fields}, out, nil
	case p.List != nil:
		items := make([]tree.Pattern, len(p.List))
		out := sc
		for i, ip := range p.List {
			item, next, err := r.pattern(ip, out)
			if err != nil {
				return nil, sc, err
			}
			items[i] = item
			out = next
		}
		return tree.PatList{Items: items}, out, nil
	default:
		return nil, sc, r.errf(ErrCodeBadExpr, "pattern node carries no recognized key")
	}
}

func (r *resolver) patFields(raw []pfYAML, sc scope) ([]tree.PatField, scope, error) {
	fields := make([]tree.PatField, len(raw))
	out := sc
	for i, pf := range raw {
		f := tree.PatField{Name: pf.Name}
		if pf.Bind != nil {
			f.Binding = r.newBinding()
			out = out.bind(*pf.Bind, f.Binding)
		}
		if pf.Match != nil {
			nested, next, err := r.pattern(*pf.Match, out)
			if err != nil {
				return nil, sc, err
			}
			f.Value = nested
			out = next
		}
		fields[i] = f
	}
	return fields, out, nil
}
