// Package resp implements the subset of the Redis serialization protocol
// that driftdb speaks: simple strings, errors, integers, bulk strings and
// arrays, plus the null forms of the latter two.
package resp

type Kind uint8

const (
	KindSimpleString Kind = iota
	KindError
	KindInteger
	KindBulkString
	KindNullBulk
	KindArray
	KindNullArray
)

// Value is one decoded RESP frame. A tagged struct instead of an interface
// so the dispatcher can switch on Kind in one place.
type Value struct {
	Kind Kind
	Str  string  // SimpleString, Error, BulkString payload
	Int  int64   // Integer payload
	Arr  []Value // Array elements; len 0 is the empty array
}

func Simple(s string) Value  { return Value{Kind: KindSimpleString, Str: s} }
func Bulk(s string) Value    { return Value{Kind: KindBulkString, Str: s} }
func Int(n int64) Value      { return Value{Kind: KindInteger, Int: n} }
func Err(msg string) Value   { return Value{Kind: KindError, Str: msg} }
func Arr(vs ...Value) Value  { return Value{Kind: KindArray, Arr: vs} }
func ArrOf(vs []Value) Value { return Value{Kind: KindArray, Arr: vs} }

var (
	NullBulk = Value{Kind: KindNullBulk}
	NullArr  = Value{Kind: KindNullArray}
	EmptyArr = Value{Kind: KindArray, Arr: []Value{}}
	OK       = Simple("OK")
	Pong     = Simple("PONG")
)

// BulkStrings pulls the payloads out of an array of bulk strings, which is
// the only request shape clients may send. ok is false if any element is
// not a bulk string.
func (v Value) BulkStrings() (args []string, ok bool) {
	if v.Kind != KindArray {
		return nil, false
	}
	args = make([]string, len(v.Arr))
	for i, elem := range v.Arr {
		if elem.Kind != KindBulkString {
			return nil, false
		}
		args[i] = elem.Str
	}
	return args, true
}

// Equal reports deep equality; handy for round-trip tests.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind || v.Str != other.Str || v.Int != other.Int {
		return false
	}
	if len(v.Arr) != len(other.Arr) {
		return false
	}
	for i := range v.Arr {
		if !v.Arr[i].Equal(other.Arr[i]) {
			return false
		}
	}
	return true
}
