// Package tree defines the resolved expression tree consumed by the
// engine.
//
// The tree is the output of the host's static passes: every Ref carries a
// resolved BindingID and every state-capable construct carries its
// structural persistence ID (or none). The engine never inspects names for
// resolution; names are kept only for diagnostics.
//
// Expr is a closed sum: the evaluator switches exhaustively over the kinds
// below and a new combinator means a new case, found at compile time.
package tree

import (
	"github.com/BoonLang/boon-go/internal/persist"
	"github.com/BoonLang/boon-go/internal/value"
)

// BindingID identifies one resolved binding site (block variable, function
// parameter, hold state name, pattern alias, or link declaration). IDs are
// unique within a Program.
type BindingID uint32

// NoBinding is the zero BindingID, carried by unresolved references only
// in malformed trees; the evaluator rejects it.
const NoBinding BindingID = 0

// Program is a complete resolved program: its root expression plus the
// root persistence identity the static pass assigned (zero when the
// program carries no durable state).
type Program struct {
	Root    Expr
	Persist persist.ID
	// Name labels the program in diagnostics and traces.
	Name string
}

// Expr is the sealed interface over resolved expression kinds.
type Expr interface {
	expr() // sealed
}

// Ref is a reference to a resolved binding.
type Ref struct {
	Name    string
	Binding BindingID
}

// Lit is a scalar literal (number, text, bool, or tag).
type Lit struct {
	Value value.Value
}

// TextExpr is a text literal with interpolated expressions, such as
// "Total: {count}". Parts alternate freely between fixed runs and
// embedded expressions.
type TextExpr struct {
	Parts []TextPart
}

// TextPart is one segment of a TextExpr: either fixed text or an
// interpolated expression.
type TextPart struct {
	Fixed string
	Embed Expr // nil for fixed runs
}

// ListLit constructs a list from item expressions. State-capable: list
// contents survive restarts when Persist is set.
type ListLit struct {
	Items   []Expr
	Persist persist.ID
}

// FieldDef is one named field of an ObjectLit or TaggedLit.
type FieldDef struct {
	Name string
	Expr Expr
}

// ObjectLit constructs an ordered record.
type ObjectLit struct {
	Fields []FieldDef
}

// TaggedLit constructs a tagged record.
type TaggedLit struct {
	Tag    string
	Fields []FieldDef
}

// Func is a function definition. Functions are values of the tree, not of
// the runtime: a Call instantiates Body with Params bound to argument
// nodes.
type Func struct {
	Name   string
	Params []Param
	Body   Expr
}

// Param is one declared function parameter.
type Param struct {
	Name    string
	Binding BindingID
}

// Call invokes a function by resolved reference or a registered builtin by
// path (e.g. "Math/sum", "List/retain"). Exactly one of Target and Path is
// set. Arguments are named; the piped value, when present, arrives
// separately through the pipe.
type Call struct {
	Target *Func  // user-defined function, inlined by the resolver
	Path   string // builtin path when Target is nil
	Args   []Arg
}

// Arg is one named argument of a Call.
type Arg struct {
	Name string
	Expr Expr
}

// Latest merges its inputs: every upstream event is forwarded, ties inside
// one propagation turn resolved by declaration order.
type Latest struct {
	Inputs []Expr
}

// Hold is the stateful merge-latest: `initial |> LATEST name { body }`.
// The piped expression provides the initial state; Body may reference
// State, bound to this node's own most recently emitted value (read-only,
// strictly lagged). State-capable.
type Hold struct {
	StateName string
	State     BindingID
	Body      Expr
	Persist   persist.ID
}

// Then freezes on events: each piped tick evaluates Body once against a
// snapshot of current values, then holds the result until the next tick.
type Then struct {
	Body Expr
}

// When is the pattern-gated freeze: on each piped tick the first matching
// arm's body is evaluated once, like Then. An arm body resolving to the
// skip sentinel suppresses the tick.
type When struct {
	Arms []Arm
}

// While is the pattern-gated continuous flow: the selected arm's body
// subgraph stays live and keeps updating the output until the piped value
// matches a different arm.
type While struct {
	Arms []Arm
}

// Arm is one pattern arm of a When or While.
type Arm struct {
	Pattern Pattern
	Body    Expr
}

// Pipe feeds From into To. To must be a pipe-consuming construct (Then,
// When, While, Hold, LinkSetter, or a Call taking the piped value).
type Pipe struct {
	From Expr
	To   Expr
}

// Block introduces locally scoped bindings; its result is Output's node.
type Block struct {
	Vars   []BlockVar
	Output Expr
}

// BlockVar is one local binding of a Block, in declaration order; later
// vars and Output may reference earlier ones.
type BlockVar struct {
	Name    string
	Binding BindingID
	Expr    Expr
}

// Link declares a two-phase event-binding stub: created with no producer,
// connected exactly once later (by a LinkSetter or an external source).
type Link struct {
	Name    string
	Binding BindingID
}

// LinkSetter connects the piped producer to a declared Link. A second
// connection to the same Link fails graph construction.
type LinkSetter struct {
	Name    string
	Binding BindingID
}

// Passed references the value piped into the nearest enclosing
// freeze/arm body evaluation.
type Passed struct{}

// Skip is the emission-suppressing sentinel expression.
type Skip struct{}

func (Ref) expr()        {}
func (Lit) expr()        {}
func (TextExpr) expr()   {}
func (ListLit) expr()    {}
func (ObjectLit) expr()  {}
func (TaggedLit) expr()  {}
func (Func) expr()       {}
func (Call) expr()       {}
func (Latest) expr()     {}
func (Hold) expr()       {}
func (Then) expr()       {}
func (When) expr()       {}
func (While) expr()      {}
func (Pipe) expr()       {}
func (Block) expr()      {}
func (Link) expr()       {}
func (LinkSetter) expr() {}
func (Passed) expr()     {}
func (Skip) expr()       {}
