package updateexpr

import "fmt"

// ClauseType is one of the four sections of an UpdateExpression.
type ClauseType int

const (
	ClauseSet ClauseType = iota + 1
	ClauseRemove
	ClauseAdd
	ClauseDelete
)

// clauseOrder is the order clauses are rendered in.
var clauseOrder = [...]ClauseType{ClauseSet, ClauseRemove, ClauseAdd, ClauseDelete}

// Keyword is the clause keyword as it appears in an UpdateExpression.
func (c ClauseType) Keyword() string {
	switch c {
	case ClauseSet:
		return "SET"
	case ClauseRemove:
		return "REMOVE"
	case ClauseAdd:
		return "ADD"
	case ClauseDelete:
		return "DELETE"
	default:
		return ""
	}
}

func (c ClauseType) String() string {
	if kw := c.Keyword(); kw != "" {
		return kw
	}
	return fmt.Sprintf("ClauseType(%d)", int(c))
}

func (c ClauseType) valid() bool {
	return c.Keyword() != ""
}
