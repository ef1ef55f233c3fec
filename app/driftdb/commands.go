package driftdb

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/flonle/driftdb/app/driftdb/resp"
	"github.com/flonle/driftdb/app/driftdb/store"
	"github.com/flonle/driftdb/app/driftdb/streams"
)

var knownCommands = map[string]bool{
	"ping": true, "echo": true, "set": true, "get": true,
	"rpush": true, "lpush": true, "lrange": true, "llen": true,
	"lpop": true, "blpop": true, "type": true, "keys": true,
	"xadd": true, "xrange": true, "xread": true,
}

// dispatch maps one request to its handler and builds the reply. The only
// non-nil error it ever returns is store.ErrCanceled, which tells the
// session to tear down without replying.
func (s *session) dispatch(req resp.Value) (resp.Value, error) {
	args, ok := req.BulkStrings()
	if !ok || len(args) == 0 {
		return resp.Err("ERR expected an array of bulk strings"), nil
	}

	name := strings.ToLower(args[0])
	if knownCommands[name] {
		commandsTotal.WithLabelValues(name).Inc()
	} else {
		commandsTotal.WithLabelValues("unknown").Inc()
		return resp.Err("ERR unknown command '" + args[0] + "'"), nil
	}

	switch name {
	case "ping":
		return s.doPING(args), nil
	case "echo":
		return s.doECHO(args), nil
	case "set":
		return s.doSET(args), nil
	case "get":
		return s.doGET(args), nil
	case "rpush":
		return s.doPUSH(args, false), nil
	case "lpush":
		return s.doPUSH(args, true), nil
	case "lrange":
		return s.doLRANGE(args), nil
	case "llen":
		return s.doLLEN(args), nil
	case "lpop":
		return s.doLPOP(args), nil
	case "blpop":
		return s.doBLPOP(args)
	case "type":
		return s.doTYPE(args), nil
	case "keys":
		return s.doKEYS(args), nil
	case "xadd":
		return s.doXADD(args), nil
	case "xrange":
		return s.doXRANGE(args), nil
	case "xread":
		return s.doXREAD(args), nil
	}
	return resp.Err("ERR unknown command '" + args[0] + "'"), nil
}

func wrongArity(name string) resp.Value {
	return resp.Err("ERR wrong number of arguments for '" + name + "' command")
}

// errReply maps a store/streams error to its RESP error class. WRONGTYPE
// carries its own class prefix; everything else is ERR.
func errReply(err error) resp.Value {
	if errors.Is(err, store.ErrWrongType) {
		return resp.Err(err.Error())
	}
	return resp.Err("ERR " + err.Error())
}

func (s *session) doPING(args []string) resp.Value {
	switch len(args) {
	case 1:
		return resp.Pong
	case 2:
		return resp.Bulk(args[1])
	}
	return wrongArity("ping")
}

func (s *session) doECHO(args []string) resp.Value {
	if len(args) != 2 {
		return wrongArity("echo")
	}
	return resp.Bulk(args[1])
}

func (s *session) doSET(args []string) resp.Value {
	if len(args) < 3 {
		return wrongArity("set")
	}

	var ttl time.Duration
	switch len(args) {
	case 3:
		// no options
	case 4:
		// legacy form: a bare trailing integer of milliseconds
		ms, err := strconv.ParseInt(args[3], 10, 64)
		if err != nil || ms <= 0 {
			return resp.Err("ERR syntax error")
		}
		ttl = time.Duration(ms) * time.Millisecond
	case 5:
		n, err := strconv.ParseInt(args[4], 10, 64)
		if err != nil || n <= 0 {
			return resp.Err("ERR invalid expire time in 'set' command")
		}
		switch strings.ToLower(args[3]) {
		case "px":
			ttl = time.Duration(n) * time.Millisecond
		case "ex":
			ttl = time.Duration(n) * time.Second
		default:
			return resp.Err("ERR syntax error")
		}
	default:
		return resp.Err("ERR syntax error")
	}

	s.store.Set(args[1], args[2], ttl)
	return resp.OK
}

func (s *session) doGET(args []string) resp.Value {
	if len(args) != 2 {
		return wrongArity("get")
	}
	val, ok, err := s.store.Get(args[1])
	if err != nil {
		return errReply(err)
	}
	if !ok {
		return resp.NullBulk
	}
	return resp.Bulk(val)
}

func (s *session) doPUSH(args []string, front bool) resp.Value {
	name := "rpush"
	if front {
		name = "lpush"
	}
	if len(args) < 3 {
		return wrongArity(name)
	}
	var n int
	var err error
	if front {
		n, err = s.store.LPush(args[1], args[2:])
	} else {
		n, err = s.store.RPush(args[1], args[2:])
	}
	if err != nil {
		return errReply(err)
	}
	return resp.Int(int64(n))
}

func (s *session) doLRANGE(args []string) resp.Value {
	if len(args) != 4 {
		return wrongArity("lrange")
	}
	start, err1 := strconv.ParseInt(args[2], 10, 64)
	stop, err2 := strconv.ParseInt(args[3], 10, 64)
	if err1 != nil || err2 != nil {
		return resp.Err("ERR value is not an integer or out of range")
	}
	vals, err := s.store.LRange(args[1], start, stop)
	if err != nil {
		return errReply(err)
	}
	return bulkArray(vals)
}

func (s *session) doLLEN(args []string) resp.Value {
	if len(args) != 2 {
		return wrongArity("llen")
	}
	n, err := s.store.LLen(args[1])
	if err != nil {
		return errReply(err)
	}
	return resp.Int(int64(n))
}

func (s *session) doLPOP(args []string) resp.Value {
	switch len(args) {
	case 2:
		val, ok, err := s.store.LPop(args[1])
		if err != nil {
			return errReply(err)
		}
		if !ok {
			return resp.NullBulk
		}
		return resp.Bulk(val)
	case 3:
		count, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil || count < 0 {
			return resp.Err("ERR value is out of range, must be positive")
		}
		vals, ok, err := s.store.LPopCount(args[1], int(count))
		if err != nil {
			return errReply(err)
		}
		if !ok {
			return resp.NullBulk
		}
		return bulkArray(vals)
	}
	return wrongArity("lpop")
}

func (s *session) doBLPOP(args []string) (resp.Value, error) {
	if len(args) != 3 {
		return wrongArity("blpop"), nil
	}
	seconds, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return resp.Err("ERR timeout is not a float or out of range"), nil
	}
	if seconds < 0 {
		return resp.Err("ERR timeout is negative"), nil
	}

	timeout := time.Duration(seconds * float64(time.Second))
	cancel, disarm := s.watchPeer()
	defer disarm()
	val, ok, err := s.store.BLPop(args[1], timeout, cancel)
	if err != nil {
		if errors.Is(err, store.ErrCanceled) {
			return resp.Value{}, err
		}
		return errReply(err), nil
	}
	if !ok {
		return resp.NullBulk, nil
	}
	return resp.Arr(resp.Bulk(args[1]), resp.Bulk(val)), nil
}

func (s *session) doTYPE(args []string) resp.Value {
	if len(args) != 2 {
		return wrongArity("type")
	}
	return resp.Simple(s.store.Type(args[1]))
}

func (s *session) doKEYS(args []string) resp.Value {
	if len(args) != 2 {
		return wrongArity("keys")
	}
	if args[1] != "*" {
		return resp.Err("ERR only the * pattern is supported")
	}
	return bulkArray(s.store.Keys())
}

func (s *session) doXADD(args []string) resp.Value {
	if len(args) < 5 || (len(args)-3)%2 != 0 {
		return wrongArity("xadd")
	}
	fields := make([]streams.FieldPair, 0, (len(args)-3)/2)
	for i := 3; i < len(args); i += 2 {
		fields = append(fields, streams.FieldPair{Field: args[i], Value: args[i+1]})
	}
	id, err := s.store.XAdd(args[1], args[2], fields)
	if err != nil {
		return errReply(err)
	}
	return resp.Bulk(id.String())
}

func (s *session) doXRANGE(args []string) resp.Value {
	if len(args) != 4 {
		return wrongArity("xrange")
	}
	entries, err := s.store.XRange(args[1], args[2], args[3])
	if err != nil {
		return errReply(err)
	}
	return entriesValue(entries)
}

func (s *session) doXREAD(args []string) resp.Value {
	if len(args) < 4 {
		return wrongArity("xread")
	}
	if strings.EqualFold(args[1], "block") {
		return resp.Err("ERR syntax error")
	}
	if !strings.EqualFold(args[1], "streams") {
		return resp.Err("ERR syntax error")
	}
	rest := args[2:]
	if len(rest)%2 != 0 {
		return resp.Err("ERR Unbalanced XREAD list of streams: for each stream key an ID or '$' must be specified")
	}

	half := len(rest) / 2
	groups := make([]resp.Value, 0, half)
	for i := range half {
		key, from := rest[i], rest[half+i]
		entries, err := s.store.XAfter(key, from)
		if err != nil {
			return errReply(err)
		}
		if len(entries) == 0 {
			continue
		}
		groups = append(groups, resp.Arr(resp.Bulk(key), entriesValue(entries)))
	}
	if len(groups) == 0 {
		return resp.NullArr
	}
	return resp.ArrOf(groups)
}

func bulkArray(vals []string) resp.Value {
	vs := make([]resp.Value, len(vals))
	for i, val := range vals {
		vs[i] = resp.Bulk(val)
	}
	return resp.ArrOf(vs)
}

func entriesValue(entries []streams.Entry) resp.Value {
	vs := make([]resp.Value, 0, len(entries))
	for _, en := range entries {
		fields := make([]resp.Value, 0, len(en.Fields)*2)
		for _, fp := range en.Fields {
			fields = append(fields, resp.Bulk(fp.Field), resp.Bulk(fp.Value))
		}
		vs = append(vs, resp.Arr(resp.Bulk(en.ID.String()), resp.ArrOf(fields)))
	}
	return resp.ArrOf(vs)
}
