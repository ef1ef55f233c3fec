package streams

import (
	"errors"
	"strconv"
)

// ID is a stream entry identifier: a millisecond timestamp and a sequence
// number, ordered lexicographically as the pair (Ms, Seq).
type ID struct {
	Ms  uint64
	Seq uint64
}

const MaxUint64 = ^uint64(0)

var (
	MinID = ID{0, 0}
	MaxID = ID{MaxUint64, MaxUint64}
)

var ErrInvalidID = errors.New("Invalid stream ID specified as stream command argument")

func (id ID) String() string {
	return strconv.FormatUint(id.Ms, 10) + "-" + strconv.FormatUint(id.Seq, 10)
}

// Return true if id is greater than other.
func (id ID) GreaterThan(other ID) bool {
	if id.Ms > other.Ms {
		return true
	} else if id.Ms == other.Ms && id.Seq > other.Seq {
		return true
	}
	return false
}

// Return true if id is less than other.
func (id ID) LessThan(other ID) bool {
	if id.Ms < other.Ms {
		return true
	} else if id.Ms == other.Ms && id.Seq < other.Seq {
		return true
	}
	return false
}

func (id ID) IsZero() bool {
	return id.Ms == 0 && id.Seq == 0
}

const hexDigits = "0123456789abcdef"

// indexKey is the radix tree key for id: both halves as fixed-width hex,
// so the tree's lexicographic order is exactly numeric order on (Ms, Seq).
func (id ID) indexKey() string {
	var buf [32]byte
	hexPad(buf[:16], id.Ms)
	hexPad(buf[16:], id.Seq)
	return string(buf[:])
}

func hexPad(buf []byte, val uint64) {
	for i := len(buf) - 1; i >= 0; i-- {
		buf[i] = hexDigits[val&15]
		val >>= 4
	}
}

// addDigit "applies the base (10)" to the running total and adds one more
// ascii digit, with overflow checks on both steps.
func addDigit(total uint64, char rune) (newTotal uint64, err error) {
	const maxBase = MaxUint64 / 10

	if char < '0' || char > '9' {
		return 0, ErrInvalidID
	}

	if total > maxBase {
		return 0, errors.New("stream ID component overflows 64 bits")
	}
	newBase := total * 10
	newTotal = newBase + uint64(char-'0')
	if newTotal < newBase {
		return newTotal, errors.New("stream ID component overflows 64 bits")
	}
	return newTotal, nil
}

func parseComponent(s string) (uint64, error) {
	if s == "" {
		return 0, ErrInvalidID
	}
	var total uint64
	var err error
	for _, char := range s {
		total, err = addDigit(total, char)
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}

// parseBound parses an XRANGE/XREAD bound of the form "<ms>" or
// "<ms>-<seq>". A bare ms gets defaultSeq as its sequence part.
func parseBound(spec string, defaultSeq uint64) (ID, error) {
	for i, char := range spec {
		if char == '-' {
			ms, err := parseComponent(spec[:i])
			if err != nil {
				return ID{}, err
			}
			seq, err := parseComponent(spec[i+1:])
			if err != nil {
				return ID{}, err
			}
			return ID{ms, seq}, nil
		}
	}
	ms, err := parseComponent(spec)
	if err != nil {
		return ID{}, err
	}
	return ID{ms, defaultSeq}, nil
}

// ParseRangeStart parses the lower bound of an XRANGE. "-" is the minimum
// key; a bare "<ms>" starts at sequence 0.
func ParseRangeStart(spec string) (ID, error) {
	if spec == "-" {
		return MinID, nil
	}
	return parseBound(spec, 0)
}

// ParseRangeEnd parses the upper bound of an XRANGE. "+" is the maximum
// key; a bare "<ms>" ends at the maximum sequence.
func ParseRangeEnd(spec string) (ID, error) {
	if spec == "+" {
		return MaxID, nil
	}
	return parseBound(spec, MaxUint64)
}

// ParseReadOffset parses an XREAD lower bound. The bound is exclusive; a
// bare "<ms>" means (ms, 0), so entries from (ms, 1) onward match.
func ParseReadOffset(spec string) (ID, error) {
	return parseBound(spec, 0)
}
