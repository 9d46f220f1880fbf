package core

import (
	"strings"
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// OrderBy renders `orderings` as an ORDER BY clause, keeping only the fields listed in `allowed`
// (map of API field name to column). `fallback` is used when nothing valid remains.
func OrderBy(orderings []DBOrdering, allowed map[string]string, fallback ...DBOrdering) string {
	parts := make([]string, 0, len(orderings))
	for _, ord := range orderings {
		if col, ok := allowed[ord.Field]; ok {
			parts = append(parts, DBOrdering{Field: col, Ascending: ord.Ascending}.String())
		}
	}
	if len(parts) == 0 {
		for _, ord := range fallback {
			parts = append(parts, ord.String())
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}
