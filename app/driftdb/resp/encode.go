package resp

import "strconv"

const crlf = "\r\n"

// Encoder builds wire frames in an append-only buffer. The buffer is an
// exported field to mutate as you like; a session reuses one encoder and
// resets it between replies so a frame is always handed to the socket as
// one contiguous write.
type Encoder struct {
	Buf []byte
}

func (e *Encoder) Reset() { e.Buf = e.Buf[:0] }

func (e *Encoder) WriteValue(v Value) {
	switch v.Kind {
	case KindSimpleString:
		e.Buf = append(e.Buf, '+')
		e.Buf = append(e.Buf, v.Str...)
		e.Buf = append(e.Buf, crlf...)
	case KindError:
		e.Buf = append(e.Buf, '-')
		e.Buf = append(e.Buf, v.Str...)
		e.Buf = append(e.Buf, crlf...)
	case KindInteger:
		e.Buf = append(e.Buf, ':')
		e.Buf = strconv.AppendInt(e.Buf, v.Int, 10)
		e.Buf = append(e.Buf, crlf...)
	case KindBulkString:
		e.WriteBulkStr(v.Str)
	case KindNullBulk:
		e.Buf = append(e.Buf, "$-1"+crlf...)
	case KindNullArray:
		e.Buf = append(e.Buf, "*-1"+crlf...)
	case KindArray:
		e.WriteArrHeader(len(v.Arr))
		for _, elem := range v.Arr {
			e.WriteValue(elem)
		}
	}
}

func (e *Encoder) WriteBulkStr(val string) {
	e.Buf = append(e.Buf, '$')
	e.Buf = strconv.AppendInt(e.Buf, int64(len(val)), 10)
	e.Buf = append(e.Buf, crlf...)
	e.Buf = append(e.Buf, val...)
	e.Buf = append(e.Buf, crlf...)
}

// Don't forget to write the items, too.
func (e *Encoder) WriteArrHeader(arrLen int) {
	e.Buf = append(e.Buf, '*')
	e.Buf = strconv.AppendInt(e.Buf, int64(arrLen), 10)
	e.Buf = append(e.Buf, crlf...)
}

// Encode is the one-shot form for callers without an encoder to reuse.
func Encode(v Value) []byte {
	var e Encoder
	e.WriteValue(v)
	return e.Buf
}
