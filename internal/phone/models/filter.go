package models

import (
	dErrors "phones/pkg/domain-errors"
)

// WhereOp enumerates the comparison operators a list filter may use.
type WhereOp string

const (
	OpEq    WhereOp = "="
	OpNotEq WhereOp = "<>"
	OpIn    WhereOp = "in"
	OpNotIn WhereOp = "notIn"
	OpGt    WhereOp = ">"
	OpGte   WhereOp = ">="
	OpLt    WhereOp = "<"
	OpLte   WhereOp = "<="
	OpLike  WhereOp = "like"
)

// WhereClause is one predicate. Values holds a single element for scalar
// operators and the full set for in/notIn. Values are compared in their
// string form; stores coerce per column.
type WhereClause struct {
	Field  string   `json:"field"`
	Op     WhereOp  `json:"op"`
	Values []string `json:"values"`
}

// OrderDirection is asc or desc.
type OrderDirection string

const (
	OrderAsc  OrderDirection = "asc"
	OrderDesc OrderDirection = "desc"
)

// OrderBy is one ordering criterion.
type OrderBy struct {
	Field     string         `json:"field"`
	Direction OrderDirection `json:"direction"`
}

// ListFilter drives the list read path. Limit zero means the default page of
// one row; a negative limit removes the cap for internal entity-wide scans.
type ListFilter struct {
	Limit   int           `json:"limit"`
	Offset  int           `json:"offset"`
	OrderBy []OrderBy     `json:"orderBy"`
	Where   []WhereClause `json:"where"`
	Search  string        `json:"search"`
}

// ListResult is a page of records plus the pre-pagination total, echoing the
// filter that produced it.
type ListResult struct {
	Nodes      []Phone
	TotalCount int
	Limit      int
	Offset     int
	OrderBy    []OrderBy
	Where      []WhereClause
}

// FilterFields enumerates the fields a clause or ordering may touch. Keeping
// this an explicit allowlist is what lets the Postgres store interpolate
// column names without ever trusting filter input.
var FilterFields = map[string]bool{
	"id":        true,
	"createdAt": true,
	"updatedAt": true,
	"entity":    true,
	"type":      true,
	"country":   true,
	"number":    true,
	"primary":   true,
	"confirmed": true,
}

var validOps = map[WhereOp]bool{
	OpEq: true, OpNotEq: true, OpIn: true, OpNotIn: true,
	OpGt: true, OpGte: true, OpLt: true, OpLte: true, OpLike: true,
}

// Validate rejects clauses on unknown fields, unknown operators and empty
// value sets before they reach a store.
func (f ListFilter) Validate() error {
	for _, c := range f.Where {
		if !FilterFields[c.Field] {
			return dErrors.Newf(dErrors.CodeInvalidInput, "unknown filter field %q", c.Field)
		}
		if !validOps[c.Op] {
			return dErrors.Newf(dErrors.CodeInvalidInput, "unknown filter operator %q", c.Op)
		}
		if len(c.Values) == 0 {
			return dErrors.Newf(dErrors.CodeInvalidInput, "filter on %q has no values", c.Field)
		}
		if c.Op != OpIn && c.Op != OpNotIn && len(c.Values) != 1 {
			return dErrors.Newf(dErrors.CodeInvalidInput, "operator %q takes exactly one value", c.Op)
		}
	}
	for _, o := range f.OrderBy {
		if !FilterFields[o.Field] {
			return dErrors.Newf(dErrors.CodeInvalidInput, "unknown order field %q", o.Field)
		}
		if o.Direction != OrderAsc && o.Direction != OrderDesc {
			return dErrors.Newf(dErrors.CodeInvalidInput, "order direction must be asc or desc")
		}
	}
	if f.Offset < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "offset must not be negative")
	}
	return nil
}
