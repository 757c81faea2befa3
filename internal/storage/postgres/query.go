package postgres

import "strings"

// clauses accumulates WHERE or SET fragments written with "?" placeholders
// and their arguments in order. The finished query goes through the
// connection's Rebind before it is executed.
type clauses struct {
	parts []string
	args  []any
}

func (c *clauses) add(fragment string, args ...any) {
	c.parts = append(c.parts, fragment)
	c.args = append(c.args, args...)
}

// arg appends a parameter without a fragment and returns its placeholder.
func (c *clauses) arg(v any) string {
	c.args = append(c.args, v)
	return "?"
}

func (c *clauses) empty() bool {
	return len(c.parts) == 0
}

func (c *clauses) where() string {
	if c.empty() {
		return ""
	}
	return " WHERE " + strings.Join(c.parts, " AND ")
}

func (c *clauses) set() string {
	return strings.Join(c.parts, ", ")
}

func (c *clauses) page(limit, offset int) string {
	var sb strings.Builder
	if limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(c.arg(limit))
	}
	if offset > 0 {
		sb.WriteString(" OFFSET ")
		sb.WriteString(c.arg(offset))
	}
	return sb.String()
}
