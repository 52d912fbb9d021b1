package ir

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// ArgKind classifies a captured argument.
type ArgKind string

const (
	ArgLiteral ArgKind = "literal"
	ArgClosure ArgKind = "closure"
)

// ClosureText is how every function argument renders in a shape. Closures
// never contribute their body, so editing one is a cosmetic change.
const ClosureText = "fn"

// Arg is the rendered form of one call-site argument as carried on events.
type Arg struct {
	Kind ArgKind `json:"kind" yaml:"kind"`
	Text string  `json:"text" yaml:"text"`
}

// Literal returns a literal Arg rendered from v.
func Literal(v any) Arg {
	return Arg{Kind: ArgLiteral, Text: RenderValue(v)}
}

// Closure returns a closure Arg.
func Closure() Arg {
	return Arg{Kind: ArgClosure, Text: ClosureText}
}

// RenderArgs captures call-site arguments. Functions become closures and
// everything else is rendered as a literal.
func RenderArgs(vals ...any) []Arg {
	if len(vals) == 0 {
		return nil
	}
	args := make([]Arg, len(vals))
	for i, v := range vals {
		if v != nil && reflect.TypeOf(v).Kind() == reflect.Func {
			args[i] = Closure()
			continue
		}
		args[i] = Literal(v)
	}
	return args
}

// RenderValue renders a literal as canonical JSON. Object literals get
// their keys sorted, so {"b":1,"a":2} and {"a":2,"b":1} render the same.
// Values canonical JSON cannot express fall back to fmt's %v.
func RenderValue(v any) string {
	if v != nil && reflect.TypeOf(v).Kind() == reflect.Func {
		return ClosureText
	}
	if err, ok := v.(error); ok {
		return strconv.Quote(err.Error())
	}
	val, ok := FromAny(v)
	if !ok {
		return fmt.Sprintf("%v", v)
	}
	data, err := MarshalCanonical(val)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// RenderCall renders name(a,b,...). A call without arguments renders as the
// bare name.
func RenderCall(name string, args []Arg) string {
	if len(args) == 0 {
		return name
	}
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('(')
	for i, a := range args {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(a.Text)
	}
	b.WriteByte(')')
	return b.String()
}

// ChainShape appends a stage to the shape of its source.
func ChainShape(source, stage string) string {
	if source == "" {
		return stage
	}
	return source + "." + stage
}

// DeriveKey builds the key of a dynamic track created while an emission of
// track on subscription was open. Distinct subscriptions never collide.
func DeriveKey(track string, subscription int64) string {
	return track + "@" + strconv.FormatInt(subscription, 10)
}

// NestKey qualifies a track key opened inside a dynamic scope.
func NestKey(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "/" + key
}
