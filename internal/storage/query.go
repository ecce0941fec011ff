package storage

import (
	"strconv"
	"strings"

	logx "padron/pkg/logx"
)

// searchQuery is a ready-to-run statement with its bound arguments.
type searchQuery struct {
	text string
	args []any
}

// buildSearch turns sparse criteria into a parameterized SELECT.
// ok is false when no predicate could be built; the caller must not query.
func buildSearch(s Schema, d dialect, c Criteria, log logx.Logger) (q searchQuery, ok bool) {
	filters := s.FilterColumns()

	var conds []string
	var args []any
	bind := func(v any) string {
		args = append(args, v)
		return d.placeholder(len(args))
	}

	for _, attr := range Attributes {
		raw, present := c[attr]
		if !present || raw == "" {
			continue
		}
		col := filters[attr]
		switch attr {
		case AttrEdad:
			age, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil {
				log.Warn("non-numeric age ignored", logx.String("value", raw))
				continue
			}
			conds = append(conds, d.ageExpr(col)+" = "+bind(age))
		case AttrSexo:
			conds = append(conds, col+" = "+bind(strings.ToUpper(raw)))
		default:
			conds = append(conds, "LOWER("+d.textExpr(col)+") LIKE "+bind("%"+strings.ToLower(raw)+"%"))
		}
	}
	if len(conds) == 0 {
		return searchQuery{}, false
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	for i, nc := range s.Columns.projection() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(nc.col)
		b.WriteString(" AS ")
		b.WriteString(nc.alias)
	}
	b.WriteString(", ")
	b.WriteString(d.ageExpr(s.Columns.FechaNacimiento))
	b.WriteString(" AS Edad FROM ")
	b.WriteString(s.Table)
	b.WriteString(" WHERE ")
	b.WriteString(strings.Join(conds, " AND "))
	b.WriteString(" ORDER BY ")
	b.WriteString(s.Columns.NombreCompleto)
	b.WriteString(" ASC")

	return searchQuery{text: b.String(), args: args}, true
}
