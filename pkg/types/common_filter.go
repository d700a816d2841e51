package types

import (
	"fmt"
	"regexp"

	"gorm.io/gorm/clause"
)

type CommonFilterOperator string

const (
	CommonFilterOperatorEq      CommonFilterOperator = "eq"
	CommonFilterOperatorNotEq   CommonFilterOperator = "not_eq"
	CommonFilterOperatorLt      CommonFilterOperator = "lt"
	CommonFilterOperatorLte     CommonFilterOperator = "lte"
	CommonFilterOperatorGt      CommonFilterOperator = "gt"
	CommonFilterOperatorGte     CommonFilterOperator = "gte"
	CommonFilterOperatorRange   CommonFilterOperator = "range"
	CommonFilterOperatorIn      CommonFilterOperator = "in"
	CommonFilterOperatorIsNull  CommonFilterOperator = "is_null"
	CommonFilterOperatorNotNull CommonFilterOperator = "not_null"
)

var filterFieldPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// CommonFilter is an admin list filter on a single column.
type CommonFilter struct {
	Field    string               `json:"field"`
	Operator CommonFilterOperator `json:"operator"`
	Values   []any                `json:"values"`
}

// Validate rejects unknown operators and anything but plain column names.
func (f *CommonFilter) Validate() error {
	if !filterFieldPattern.MatchString(f.Field) {
		return fmt.Errorf("invalid filter field: %q", f.Field)
	}
	switch f.Operator {
	case CommonFilterOperatorIsNull, CommonFilterOperatorNotNull:
		return nil
	case CommonFilterOperatorRange:
		if len(f.Values) < 2 {
			return fmt.Errorf("range filter on %s needs two values", f.Field)
		}
		return nil
	case CommonFilterOperatorEq, CommonFilterOperatorNotEq, CommonFilterOperatorLt, CommonFilterOperatorLte,
		CommonFilterOperatorGt, CommonFilterOperatorGte, CommonFilterOperatorIn:
		if len(f.Values) == 0 {
			return fmt.Errorf("filter on %s has no values", f.Field)
		}
		return nil
	default:
		return fmt.Errorf("unsupported filter operator: %q", f.Operator)
	}
}

// Build constructs a GORM expression.
func (f *CommonFilter) Build(builder clause.Builder) {
	col := clause.Column{Name: f.Field}
	switch f.Operator {
	case CommonFilterOperatorIsNull:
		clause.Eq{Column: col, Value: nil}.Build(builder)
		return
	case CommonFilterOperatorNotNull:
		clause.Neq{Column: col, Value: nil}.Build(builder)
		return
	}

	if len(f.Values) == 0 {
		return
	}
	value := f.Values[0]

	switch f.Operator {
	case CommonFilterOperatorEq:
		clause.Eq{Column: col, Value: value}.Build(builder)
	case CommonFilterOperatorNotEq:
		clause.Neq{Column: col, Value: value}.Build(builder)
	case CommonFilterOperatorLt:
		clause.Lt{Column: col, Value: value}.Build(builder)
	case CommonFilterOperatorLte:
		clause.Lte{Column: col, Value: value}.Build(builder)
	case CommonFilterOperatorGt:
		clause.Gt{Column: col, Value: value}.Build(builder)
	case CommonFilterOperatorGte:
		clause.Gte{Column: col, Value: value}.Build(builder)
	case CommonFilterOperatorRange:
		if len(f.Values) < 2 {
			return
		}
		clause.And(clause.Gte{Column: col, Value: f.Values[0]}, clause.Lte{Column: col, Value: f.Values[1]}).Build(builder)
	case CommonFilterOperatorIn:
		clause.IN{Column: col, Values: f.Values}.Build(builder)
	}
}

// FiltersAnd combines filters into a single clause.Expression.
type FiltersAnd []*CommonFilter

func (w FiltersAnd) Build(builder clause.Builder) {
	if len(w) == 0 {
		builder.WriteString("1=1")
		return
	}
	exprs := make([]clause.Expression, 0, len(w))
	for _, f := range w {
		exprs = append(exprs, f)
	}
	clause.And(exprs...).Build(builder)
}
