package updateexpr

import (
	"strconv"
	"strings"
)

const (
	namePrefix  = "#"
	valuePrefix = ":"

	// emptyListSuffix can never be produced by escape since "_em" is not an escape sequence.
	emptyListSuffix = "_empty"
)

const hexDigits = "0123456789abcdef"

// NamePlaceholder returns the expression attribute name standing in for attributeName.
//
// The mapping is deterministic and injective, so two actions touching the same
// attribute always agree on the placeholder and two different attributes never share one.
func NamePlaceholder(attributeName string) (string, error) {
	if attributeName == "" {
		return "", validationErr("attributeName", "must not be empty")
	}
	return namePrefix + escape(attributeName), nil
}

// ValuePlaceholder returns the expression attribute value placeholder for attributeName.
func ValuePlaceholder(attributeName string) (string, error) {
	if attributeName == "" {
		return "", validationErr("attributeName", "must not be empty")
	}
	return valuePrefix + escape(attributeName), nil
}

// IndexedKeyRef references a single element of a list attribute, e.g. #tags[2].
func IndexedKeyRef(attributeName string, index int) (string, error) {
	if index < 0 {
		return "", validationErr("index", "must not be negative, got "+strconv.Itoa(index))
	}
	name, err := NamePlaceholder(attributeName)
	if err != nil {
		return "", err
	}
	return name + "[" + strconv.Itoa(index) + "]", nil
}

// escape keeps ASCII letters and digits and turns every other byte into _xx.
// A leading digit is escaped too, leaving #0, #1, ... free for expression.NewBuilder.
func escape(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if isAlphaNum(c) && (i > 0 || !isDigit(c)) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('_')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}
	return b.String()
}

func isAlphaNum(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || isDigit(c)
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

func isPlaceholderChar(c byte) bool {
	return isAlphaNum(c) || c == '_'
}
