package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/valyala/bytebufferpool"
)

// timestamps are stored as {"$ts": "<RFC3339Nano>"} so they survive the
// JSON encoding as time.Time
const tsTag = "$ts"

type record struct {
	Fields     map[string]any `json:"fields"`
	CreateTime time.Time      `json:"create_time"`
	UpdateTime time.Time      `json:"update_time"`
}

func encodeRecord(r record) ([]byte, error) {
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)
	wire := record{Fields: toWire(r.Fields).(map[string]any), CreateTime: r.CreateTime, UpdateTime: r.UpdateTime}
	if err := json.NewEncoder(bb).Encode(wire); err != nil {
		return nil, err
	}
	return append([]byte(nil), bb.B...), nil
}

func decodeRecord(b []byte) (record, error) {
	var r record
	if err := json.Unmarshal(b, &r); err != nil {
		return r, err
	}
	if r.Fields == nil {
		r.Fields = map[string]any{}
	}
	r.Fields = fromWire(r.Fields).(map[string]any)
	return r, nil
}

// toWire converts a resolved value into plain JSON-encodable data.
func toWire(v any) any {
	switch t := v.(type) {
	case nil, string, bool, float64, float32, int, int32, int64, uint, uint32, uint64:
		return t
	case time.Time:
		return map[string]any{tsTag: t.UTC().Format(time.RFC3339Nano)}
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = toWire(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = toWire(item)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = item
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = item
		}
		return out
	default:
		// structs and other typed values go through their JSON form
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		var generic any
		if err := json.Unmarshal(b, &generic); err != nil {
			return fmt.Sprint(t)
		}
		return toWire(generic)
	}
}

func fromWire(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 1 {
			if s, ok := t[tsTag].(string); ok {
				if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
					return ts
				}
			}
		}
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = fromWire(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = fromWire(item)
		}
		return out
	default:
		return t
	}
}

// normalize returns v in the exact shape it would have after a round trip
// through the store, so values compare with reflect.DeepEqual.
func normalize(v any) (any, error) {
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)
	if err := json.NewEncoder(bb).Encode(toWire(v)); err != nil {
		return nil, err
	}
	var out any
	if err := json.NewDecoder(bytes.NewReader(bb.B)).Decode(&out); err != nil {
		return nil, err
	}
	return fromWire(out), nil
}

// resolve replaces ServerTimestamp sentinels with ts. A nil ts leaves the
// field null, which is what a pending local snapshot shows.
func resolve(v any, ts *time.Time) any {
	switch t := v.(type) {
	case serverTimestamp:
		if ts == nil {
			return nil
		}
		return *ts
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = resolve(item, ts)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = resolve(item, ts)
		}
		return out
	default:
		return t
	}
}

// prepareFields resolves sentinels and normalises a write payload.
func prepareFields(f Fields, ts *time.Time) (map[string]any, error) {
	if f == nil {
		return map[string]any{}, nil
	}
	n, err := normalize(resolve(map[string]any(f), ts))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	m, _ := n.(map[string]any)
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

func getPath(f map[string]any, field string) (any, bool) {
	cur := any(f)
	for _, part := range strings.Split(field, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// setPath writes value at a dotted path, creating intermediate maps and
// replacing non-map values on the way.
func setPath(f map[string]any, field string, value any) {
	parts := strings.Split(field, ".")
	cur := f
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

func cloneFields(f map[string]any) map[string]any {
	c, _ := fromWire(toWire(f)).(map[string]any)
	if c == nil {
		c = map[string]any{}
	}
	return c
}

// applyUpdate merges dotted-key updates into a copy of base.
func applyUpdate(base map[string]any, updates map[string]any) map[string]any {
	out := cloneFields(base)
	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		setPath(out, k, updates[k])
	}
	return out
}

func valuesEqual(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders nil < bool < number < time < string. Values of
// other types compare equal.
func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch x := a.(type) {
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case float64:
		y := b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	case time.Time:
		return x.Compare(b.(time.Time))
	case string:
		return strings.Compare(x, b.(string))
	}
	return 0
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case time.Time:
		return 3
	case string:
		return 4
	default:
		return 5
	}
}

func sortDocuments(docs []*Document, orders []Order) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, o := range orders {
			a, _ := docs[i].Get(o.Field)
			b, _ := docs[j].Get(o.Field)
			c := compareValues(a, b)
			if c == 0 {
				continue
			}
			if o.Direction == Desc {
				return c > 0
			}
			return c < 0
		}
		return docs[i].ID < docs[j].ID
	})
}
