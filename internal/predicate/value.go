package predicate

import "fmt"

// Value is a dynamically-typed predicate/format-expression value: a
// float64, a bool, a string, or nil (absent, e.g. ELAPSED_TIME before any
// prior note).
type Value struct {
	Num    float64
	Str    string
	Bool   bool
	IsNum  bool
	IsStr  bool
	IsBool bool
	IsNil  bool
}

func NumberValue(f float64) Value { return Value{Num: f, IsNum: true} }
func StringValue(s string) Value  { return Value{Str: s, IsStr: true} }
func BoolValue(b bool) Value      { return Value{Bool: b, IsBool: true} }
func NilValue() Value             { return Value{IsNil: true} }

func (v Value) Truthy() bool {
	switch {
	case v.IsNil:
		return false
	case v.IsBool:
		return v.Bool
	case v.IsNum:
		return v.Num != 0
	case v.IsStr:
		return v.Str != ""
	}
	return false
}

func (v Value) String() string {
	switch {
	case v.IsNil:
		return "None"
	case v.IsBool:
		return fmt.Sprintf("%t", v.Bool)
	case v.IsNum:
		if v.Num == float64(int64(v.Num)) {
			return fmt.Sprintf("%d", int64(v.Num))
		}
		return fmt.Sprintf("%g", v.Num)
	case v.IsStr:
		return v.Str
	}
	return ""
}

// Env is the variable environment a predicate or format expression is
// evaluated against.
type Env map[string]Value
