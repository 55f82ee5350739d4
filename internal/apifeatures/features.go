// Package apifeatures turns list-request query parameters into a MongoDB
// filter, sort, projection and page window.
package apifeatures

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/harentsoaR/jobboard-api/internal/apperror"
	"github.com/harentsoaR/jobboard-api/internal/store"
)

const (
	DefaultSort  = "-createdAt"
	DefaultLimit = 100
)

// Reserved parameters never become filter predicates.
var Reserved = map[string]bool{"page": true, "sort": true, "limit": true, "fields": true, "search": true}

type FieldType int

const (
	String FieldType = iota
	Number
	Bool
	ObjectID
	Time
)

type Operator string

const (
	OpEq  Operator = "eq"
	OpNe  Operator = "ne"
	OpGt  Operator = "gt"
	OpGte Operator = "gte"
	OpLt  Operator = "lt"
	OpLte Operator = "lte"
	OpIn  Operator = "in"
)

var operators = map[Operator]bool{OpEq: true, OpNe: true, OpGt: true, OpGte: true, OpLt: true, OpLte: true, OpIn: true}

// Predicate is one parsed filter condition. Value is already converted to
// the field's type; for OpIn it is a bson.A.
type Predicate struct {
	Field string
	Op    Operator
	Value interface{}
}

// Schema describes what a collection allows callers to query.
type Schema struct {
	Fields      map[string]FieldType
	Search      []string
	Hidden      []string
	DefaultSort string
}

var bracketKey = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\[([a-z]+)\]$`)

// Features accumulates the stages of one list query. Stages are applied in
// the order filter, sort, field selection, pagination; the first
// conversion failure is kept and reported by Err.
type Features struct {
	schema     Schema
	query      url.Values
	predicates []Predicate
	search     bson.M
	sort       bson.D
	projection bson.M
	page       int64
	limit      int64
	paginate   bool
	err        error
}

func New(schema Schema, query url.Values) *Features {
	if query == nil {
		query = url.Values{}
	}
	return &Features{schema: schema, query: query, page: 1, limit: DefaultLimit}
}

// last returns the final value of a parameter; repeated parameters do not
// turn into arrays.
func (f *Features) last(key string) string {
	values := f.query[key]
	if len(values) == 0 {
		return ""
	}
	return values[len(values)-1]
}

// Filter parses every non-reserved parameter into a predicate. Unknown
// fields and operators are dropped.
func (f *Features) Filter() *Features {
	for key := range f.query {
		if Reserved[key] {
			continue
		}
		field, op := key, OpEq
		if m := bracketKey.FindStringSubmatch(key); m != nil {
			field, op = m[1], Operator(m[2])
		}
		if !operators[op] {
			continue
		}
		typ, ok := f.schema.Fields[field]
		if !ok {
			continue
		}

		raw := f.last(key)
		value, err := convertFor(field, typ, op, raw)
		if err != nil {
			if f.err == nil {
				f.err = err
			}
			continue
		}
		f.predicates = append(f.predicates, Predicate{Field: field, Op: op, Value: value})
	}
	return f
}

func convertFor(field string, typ FieldType, op Operator, raw string) (interface{}, error) {
	if op != OpIn {
		return convert(field, typ, raw)
	}
	list := bson.A{}
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		v, err := convert(field, typ, item)
		if err != nil {
			return nil, err
		}
		list = append(list, v)
	}
	return list, nil
}

func convert(field string, typ FieldType, raw string) (interface{}, error) {
	switch typ {
	case Number:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n, nil
		}
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, apperror.FieldInvalid(field, field+" must be a number")
		}
		return n, nil
	case Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, apperror.FieldInvalid(field, field+" must be true or false")
		}
		return b, nil
	case ObjectID:
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			return nil, apperror.InvalidID(field, raw)
		}
		return id, nil
	case Time:
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, raw); err == nil {
				return t, nil
			}
		}
		return nil, apperror.FieldInvalid(field, field+" must be a date")
	default:
		return raw, nil
	}
}

// Search adds a case-insensitive substring match over the schema's search
// fields. The term is matched literally.
func (f *Features) Search() *Features {
	term := strings.TrimSpace(f.last("search"))
	if term == "" || len(f.schema.Search) == 0 {
		return f
	}
	pattern := regexp.QuoteMeta(term)
	or := make([]bson.M, 0, len(f.schema.Search))
	for _, field := range f.schema.Search {
		or = append(or, bson.M{field: bson.M{"$regex": pattern, "$options": "i"}})
	}
	f.search = bson.M{"$or": or}
	return f
}

func (f *Features) Sort() *Features {
	f.sort = f.parseSort(f.last("sort"))
	if len(f.sort) == 0 {
		def := f.schema.DefaultSort
		if def == "" {
			def = DefaultSort
		}
		f.sort = f.parseSort(def)
	}
	// _id breaks ties so pages over equal keys stay stable.
	for _, e := range f.sort {
		if e.Key == "_id" {
			return f
		}
	}
	f.sort = append(f.sort, bson.E{Key: "_id", Value: 1})
	return f
}

func (f *Features) parseSort(raw string) bson.D {
	sort := bson.D{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		dir := 1
		if strings.HasPrefix(part, "-") {
			dir = -1
			part = part[1:]
		}
		if !f.known(part) {
			continue
		}
		sort = append(sort, bson.E{Key: part, Value: dir})
	}
	return sort
}

// LimitFields builds the projection. When inclusions and exclusions are
// mixed, only the inclusions apply. Hidden fields are never returned.
func (f *Features) LimitFields() *Features {
	include := bson.M{}
	exclude := bson.M{}
	for _, part := range strings.Split(f.last("fields"), ",") {
		part = strings.TrimSpace(part)
		negate := strings.HasPrefix(part, "-")
		part = strings.TrimPrefix(part, "-")
		if !f.known(part) || f.hidden(part) {
			continue
		}
		if negate {
			exclude[part] = 0
		} else {
			include[part] = 1
		}
	}
	if len(include) > 0 {
		f.projection = include
		return f
	}
	for _, h := range f.schema.Hidden {
		exclude[h] = 0
	}
	if len(exclude) > 0 {
		f.projection = exclude
	}
	return f
}

func (f *Features) Paginate() *Features {
	f.paginate = true
	if p, err := strconv.ParseInt(f.last("page"), 10, 64); err == nil && p > 0 {
		f.page = p
	}
	if l, err := strconv.ParseInt(f.last("limit"), 10, 64); err == nil && l > 0 {
		f.limit = l
	}
	return f
}

func (f *Features) known(field string) bool {
	if field == "_id" {
		return true
	}
	_, ok := f.schema.Fields[field]
	return ok
}

func (f *Features) hidden(field string) bool {
	for _, h := range f.schema.Hidden {
		if h == field {
			return true
		}
	}
	return false
}

func (f *Features) Err() error { return f.err }
func (f *Features) Predicates() []Predicate { return f.predicates }
func (f *Features) Page() int64 { return f.page }
func (f *Features) Limit() int64 { return f.limit }

// Skip is the number of documents before the requested page.
func (f *Features) Skip() int64 {
	return (f.page - 1) * f.limit
}

// FilterDoc composes the caller's fixed filters with the request filter and
// search. The result carries no pagination, so counting it gives the total.
func (f *Features) FilterDoc(fixed ...bson.M) bson.M {
	parts := append([]bson.M{}, fixed...)
	parts = append(parts, predicatesDoc(f.predicates), f.search)
	return Combine(parts...)
}

// FindOptions returns sort and projection, plus the page window when
// Paginate was applied.
func (f *Features) FindOptions() store.FindOptions {
	opts := store.FindOptions{Sort: f.sort, Projection: f.projection}
	if f.paginate {
		opts.Skip = f.Skip()
		opts.Limit = f.limit
	}
	return opts
}

func predicatesDoc(predicates []Predicate) bson.M {
	byField := make(map[string]bson.M)
	order := make([]string, 0)
	for _, p := range predicates {
		ops, ok := byField[p.Field]
		if !ok {
			ops = bson.M{}
			byField[p.Field] = ops
			order = append(order, p.Field)
		}
		ops["$"+string(p.Op)] = p.Value
	}

	doc := bson.M{}
	for _, field := range order {
		ops := byField[field]
		if v, onlyEq := ops["$eq"]; onlyEq && len(ops) == 1 {
			doc[field] = v
			continue
		}
		doc[field] = ops
	}
	return doc
}

// Combine ANDs the non-empty parts. A single part is returned as-is.
func Combine(parts ...bson.M) bson.M {
	nonEmpty := make([]bson.M, 0, len(parts))
	for _, p := range parts {
		if len(p) > 0 {
			nonEmpty = append(nonEmpty, p)
		}
	}
	switch len(nonEmpty) {
	case 0:
		return bson.M{}
	case 1:
		return nonEmpty[0]
	default:
		return bson.M{"$and": nonEmpty}
	}
}
