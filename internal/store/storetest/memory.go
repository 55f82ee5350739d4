// Package storetest provides an in-memory store.Repository for tests. It
// understands the filter, sort, projection and aggregation shapes the API
// produces; it is not a general MongoDB emulator.
package storetest

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/harentsoaR/jobboard-api/internal/store"
)

// Memory is a goroutine-safe in-memory collection.
type Memory struct {
	mu     sync.Mutex
	name   string
	docs   []bson.M
	unique []string

	// Fail makes the named method ("insert", "update", "delete", "find",
	// "count", "deleteMany", "aggregate") return the error.
	Fail map[string]error
	// Calls counts invocations per method.
	Calls map[string]int
}

var _ store.Repository = (*Memory)(nil)

func NewMemory(name string, unique ...string) *Memory {
	return &Memory{name: name, unique: unique, Fail: map[string]error{}, Calls: map[string]int{}}
}

// Seed inserts documents as-is, assigning _id when missing.
func (m *Memory) Seed(docs ...bson.M) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range docs {
		if _, ok := d["_id"]; !ok {
			d["_id"] = primitive.NewObjectID()
		}
		m.docs = append(m.docs, clone(d))
	}
}

// All returns a copy of every stored document in insertion order.
func (m *Memory) All() []bson.M {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]bson.M, 0, len(m.docs))
	for _, d := range m.docs {
		out = append(out, clone(d))
	}
	return out
}

func (m *Memory) Name() string { return m.name }

func (m *Memory) enter(method string) error {
	m.Calls[method]++
	return m.Fail[method]
}

func (m *Memory) Count(_ context.Context, filter bson.M) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("count"); err != nil {
		return 0, err
	}
	var n int64
	for _, d := range m.docs {
		if Match(d, filter) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) Find(_ context.Context, filter bson.M, opts store.FindOptions) ([]bson.M, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("find"); err != nil {
		return nil, err
	}
	return m.find(filter, opts), nil
}

func (m *Memory) find(filter bson.M, opts store.FindOptions) []bson.M {
	matched := make([]bson.M, 0)
	for _, d := range m.docs {
		if Match(d, filter) {
			matched = append(matched, d)
		}
	}
	if len(opts.Sort) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			for _, key := range opts.Sort {
				dir := 1
				if n, ok := store.AsInt64(key.Value); ok && n < 0 {
					dir = -1
				}
				c := compare(matched[i][key.Key], matched[j][key.Key])
				if c != 0 {
					return c*dir < 0
				}
			}
			return false
		})
	}
	if opts.Skip > 0 {
		if opts.Skip >= int64(len(matched)) {
			matched = matched[:0]
		} else {
			matched = matched[opts.Skip:]
		}
	}
	if opts.Limit > 0 && opts.Limit < int64(len(matched)) {
		matched = matched[:opts.Limit]
	}

	out := make([]bson.M, 0, len(matched))
	for _, d := range matched {
		out = append(out, project(d, opts.Projection))
	}
	return out
}

func (m *Memory) FindOne(_ context.Context, filter bson.M, opts store.FindOptions) (bson.M, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("find"); err != nil {
		return nil, err
	}
	opts.Limit = 1
	found := m.find(filter, opts)
	if len(found) == 0 {
		return nil, store.ErrNotFound
	}
	return found[0], nil
}

func (m *Memory) FindByID(ctx context.Context, id primitive.ObjectID) (bson.M, error) {
	return m.FindOne(ctx, bson.M{"_id": id}, store.FindOptions{})
}

func (m *Memory) Insert(_ context.Context, doc bson.M) (bson.M, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("insert"); err != nil {
		return nil, err
	}
	if _, ok := doc["_id"]; !ok {
		doc["_id"] = primitive.NewObjectID()
	}
	if err := m.checkUnique(doc, nil); err != nil {
		return nil, err
	}
	m.docs = append(m.docs, clone(doc))
	return clone(doc), nil
}

func (m *Memory) UpdateByID(_ context.Context, id primitive.ObjectID, set bson.M, unset ...string) (bson.M, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("update"); err != nil {
		return nil, err
	}
	for i, d := range m.docs {
		if d["_id"] != id {
			continue
		}
		updated := clone(d)
		for k, v := range set {
			updated[k] = v
		}
		for _, k := range unset {
			delete(updated, k)
		}
		if err := m.checkUnique(updated, d); err != nil {
			return nil, err
		}
		m.docs[i] = updated
		return clone(updated), nil
	}
	return nil, store.ErrNotFound
}

func (m *Memory) DeleteByID(_ context.Context, id primitive.ObjectID) (bson.M, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("delete"); err != nil {
		return nil, err
	}
	for i, d := range m.docs {
		if d["_id"] == id {
			m.docs = append(m.docs[:i], m.docs[i+1:]...)
			return d, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *Memory) DeleteMany(_ context.Context, filter bson.M) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("deleteMany"); err != nil {
		return 0, err
	}
	kept := m.docs[:0]
	var n int64
	for _, d := range m.docs {
		if Match(d, filter) {
			n++
			continue
		}
		kept = append(kept, d)
	}
	m.docs = kept
	return n, nil
}

// Aggregate supports $match followed by a $group whose _id is a document of
// "$field" references or {$ifNull: ["$field", default]}, summing 1.
func (m *Memory) Aggregate(_ context.Context, pipeline mongo.Pipeline) ([]bson.M, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("aggregate"); err != nil {
		return nil, err
	}

	rows := make([]bson.M, 0, len(m.docs))
	for _, d := range m.docs {
		rows = append(rows, d)
	}
	for _, stage := range pipeline {
		for _, op := range stage {
			switch op.Key {
			case "$match":
				filtered := rows[:0:0]
				for _, r := range rows {
					if Match(r, op.Value.(bson.M)) {
						filtered = append(filtered, r)
					}
				}
				rows = filtered
			case "$group":
				rows = group(rows, op.Value.(bson.M))
			default:
				return nil, fmt.Errorf("storetest: unsupported stage %s", op.Key)
			}
		}
	}
	return rows, nil
}

func group(rows []bson.M, spec bson.M) []bson.M {
	keySpec, _ := spec["_id"].(bson.M)
	type bucket struct {
		id    bson.M
		count int64
	}
	buckets := make(map[string]*bucket)
	order := make([]string, 0)
	for _, r := range rows {
		id := bson.M{}
		for name, expr := range keySpec {
			id[name] = evaluate(r, expr)
		}
		k := fmt.Sprint(id)
		b, ok := buckets[k]
		if !ok {
			b = &bucket{id: id}
			buckets[k] = b
			order = append(order, k)
		}
		b.count++
	}
	out := make([]bson.M, 0, len(order))
	for _, k := range order {
		out = append(out, bson.M{"_id": buckets[k].id, "count": int32(buckets[k].count)})
	}
	return out
}

func evaluate(doc bson.M, expr interface{}) interface{} {
	switch e := expr.(type) {
	case string:
		if strings.HasPrefix(e, "$") {
			return doc[strings.TrimPrefix(e, "$")]
		}
		return e
	case bson.M:
		if args, ok := e["$ifNull"].(bson.A); ok && len(args) == 2 {
			if v := evaluate(doc, args[0]); v != nil {
				return v
			}
			return args[1]
		}
	}
	return expr
}

// WithTransaction restores the collection when fn fails.
func (m *Memory) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	snapshot := make([]bson.M, 0, len(m.docs))
	for _, d := range m.docs {
		snapshot = append(snapshot, clone(d))
	}
	m.Calls["transaction"]++
	m.mu.Unlock()

	if err := fn(ctx); err != nil {
		m.mu.Lock()
		m.docs = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *Memory) checkUnique(doc, self bson.M) error {
	for _, field := range m.unique {
		v, ok := doc[field]
		if !ok {
			continue
		}
		for _, other := range m.docs {
			if self != nil && other["_id"] == self["_id"] {
				continue
			}
			if compare(other[field], v) == 0 {
				return mongo.WriteException{WriteErrors: mongo.WriteErrors{{
					Code: 11000,
					Message: fmt.Sprintf("E11000 duplicate key error collection: test.%s index: %s_1 dup key: { %s: %q }",
						m.name, field, field, fmt.Sprint(v)),
				}}}
			}
		}
	}
	return nil
}

// Match reports whether doc satisfies filter.
func Match(doc bson.M, filter bson.M) bool {
	for key, cond := range filter {
		switch key {
		case "$and":
			for _, sub := range asList(cond) {
				if !Match(doc, sub) {
					return false
				}
			}
		case "$or":
			hit := false
			for _, sub := range asList(cond) {
				if Match(doc, sub) {
					hit = true
					break
				}
			}
			if !hit {
				return false
			}
		default:
			if !matchField(doc, key, cond) {
				return false
			}
		}
	}
	return true
}

func asList(v interface{}) []bson.M {
	switch l := v.(type) {
	case []bson.M:
		return l
	case bson.A:
		out := make([]bson.M, 0, len(l))
		for _, item := range l {
			if m, ok := item.(bson.M); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func matchField(doc bson.M, field string, cond interface{}) bool {
	value, present := doc[field]
	ops, isOps := cond.(bson.M)
	if !isOps {
		return present && compare(value, cond) == 0
	}
	for op, arg := range ops {
		switch op {
		case "$eq":
			if !present || compare(value, arg) != 0 {
				return false
			}
		case "$ne":
			if present && compare(value, arg) == 0 {
				return false
			}
		case "$gt":
			if !present || compare(value, arg) <= 0 {
				return false
			}
		case "$gte":
			if !present || compare(value, arg) < 0 {
				return false
			}
		case "$lt":
			if !present || compare(value, arg) >= 0 {
				return false
			}
		case "$lte":
			if !present || compare(value, arg) > 0 {
				return false
			}
		case "$exists":
			if want, _ := arg.(bool); want != present {
				return false
			}
		case "$in":
			if !present || !inList(value, arg) {
				return false
			}
		case "$regex":
			s, ok := value.(string)
			if !ok {
				return false
			}
			pattern := fmt.Sprint(arg)
			if opts, _ := ops["$options"].(string); strings.Contains(opts, "i") {
				pattern = "(?i)" + pattern
			}
			if !regexp.MustCompile(pattern).MatchString(s) {
				return false
			}
		case "$options":
		default:
			return false
		}
	}
	return true
}

func inList(value, list interface{}) bool {
	var items []interface{}
	switch l := list.(type) {
	case bson.A:
		items = l
	case []interface{}:
		items = l
	case []primitive.ObjectID:
		for _, id := range l {
			items = append(items, id)
		}
	case []string:
		for _, s := range l {
			items = append(items, s)
		}
	case []int64:
		for _, n := range l {
			items = append(items, n)
		}
	}
	for _, item := range items {
		if compare(value, item) == 0 {
			return true
		}
	}
	return false
}

// compare orders values of the same family; mismatched families compare
// by type name so the result stays deterministic.
func compare(a, b interface{}) int {
	if an, ok := number(a); ok {
		if bn, ok := number(b); ok {
			switch {
			case an < bn:
				return -1
			case an > bn:
				return 1
			}
			return 0
		}
	}
	if at, ok := instant(a); ok {
		if bt, ok := instant(b); ok {
			return at.Compare(bt)
		}
	}
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			}
			return 1
		}
	case primitive.ObjectID:
		if bv, ok := b.(primitive.ObjectID); ok {
			return strings.Compare(av.Hex(), bv.Hex())
		}
	case nil:
		if b == nil {
			return 0
		}
		return -1
	}
	return strings.Compare(fmt.Sprintf("%T", a), fmt.Sprintf("%T", b))
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func instant(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case primitive.DateTime:
		return t.Time(), true
	}
	return time.Time{}, false
}

func project(doc bson.M, projection bson.M) bson.M {
	out := clone(doc)
	if len(projection) == 0 {
		return out
	}
	include := false
	for _, v := range projection {
		if n, _ := store.AsInt64(v); n == 1 {
			include = true
		}
	}
	if include {
		kept := bson.M{"_id": out["_id"]}
		for k, v := range projection {
			if n, _ := store.AsInt64(v); n == 1 {
				if val, ok := out[k]; ok {
					kept[k] = val
				}
			}
		}
		if n, ok := store.AsInt64(projection["_id"]); ok && n == 0 {
			delete(kept, "_id")
		}
		return kept
	}
	for k, v := range projection {
		if n, _ := store.AsInt64(v); n == 0 {
			delete(out, k)
		}
	}
	return out
}

func clone(doc bson.M) bson.M {
	out := make(bson.M, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
