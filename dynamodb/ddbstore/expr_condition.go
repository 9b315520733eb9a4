package ddbstore

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// condition is a parsed ConditionExpression. Supported grammar:
//
//	cond    = and { OR and }
//	and     = not { AND not }
//	not     = NOT not | '(' cond ')' | func | operand comparator operand
//	func    = attribute_exists(path) | attribute_not_exists(path) | begins_with(path, operand)
//
// which covers what expression.ConditionBuilder renders for optimistic locking.
type condition interface {
	holds(item map[string]types.AttributeValue) (bool, error)
}

type orCondition []condition

func (c orCondition) holds(item map[string]types.AttributeValue) (bool, error) {
	for _, sub := range c {
		ok, err := sub.holds(item)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

type andCondition []condition

func (c andCondition) holds(item map[string]types.AttributeValue) (bool, error) {
	for _, sub := range c {
		ok, err := sub.holds(item)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

type notCondition struct {
	inner condition
}

func (c notCondition) holds(item map[string]types.AttributeValue) (bool, error) {
	ok, err := c.inner.holds(item)
	return !ok, err
}

type existsCondition struct {
	path   documentPath
	negate bool
}

func (c existsCondition) holds(item map[string]types.AttributeValue) (bool, error) {
	_, ok := getPath(item, c.path)
	return ok != c.negate, nil
}

type beginsWith struct {
	path   documentPath
	prefix operand
}

func (c beginsWith) holds(item map[string]types.AttributeValue) (bool, error) {
	v, ok := getPath(item, c.path)
	if !ok {
		return false, nil
	}
	prefix, err := c.prefix.evaluate(item)
	if err != nil {
		return false, nil
	}
	switch v := v.(type) {
	case *types.AttributeValueMemberS:
		p, ok := prefix.(*types.AttributeValueMemberS)
		return ok && strings.HasPrefix(v.Value, p.Value), nil
	case *types.AttributeValueMemberB:
		p, ok := prefix.(*types.AttributeValueMemberB)
		return ok && bytes.HasPrefix(v.Value, p.Value), nil
	default:
		return false, nil
	}
}

type comparison struct {
	left, right operand
	op          string
}

func (c comparison) holds(item map[string]types.AttributeValue) (bool, error) {
	l, lerr := c.left.evaluate(item)
	r, rerr := c.right.evaluate(item)
	if lerr != nil || rerr != nil {
		// A missing attribute is unequal to everything and unordered.
		return c.op == "<>", nil
	}
	switch c.op {
	case "=":
		return attributeValuesEqual(l, r), nil
	case "<>":
		return !attributeValuesEqual(l, r), nil
	}
	order, ok := compareScalars(l, r)
	if !ok {
		return false, nil
	}
	switch c.op {
	case "<":
		return order < 0, nil
	case "<=":
		return order <= 0, nil
	case ">":
		return order > 0, nil
	default:
		return order >= 0, nil
	}
}

// compareScalars orders two values of the same scalar type.
func compareScalars(a, b types.AttributeValue) (int, bool) {
	switch av := a.(type) {
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return 0, false
		}
		c, err := compareNumbers(av.Value, bv.Value)
		return c, err == nil
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		if !ok {
			return 0, false
		}
		return strings.Compare(av.Value, bv.Value), true
	case *types.AttributeValueMemberB:
		bv, ok := b.(*types.AttributeValueMemberB)
		if !ok {
			return 0, false
		}
		return bytes.Compare(av.Value, bv.Value), true
	default:
		return 0, false
	}
}

func (p *exprParser) parseCondition(input string) (condition, error) {
	if strings.TrimSpace(input) == "" {
		return nil, validationf("invalid ConditionExpression: the expression can not be empty")
	}
	if err := p.reset(input); err != nil {
		return nil, err
	}
	c, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, p.syntaxError()
	}
	return c, nil
}

func (p *exprParser) parseOr() (condition, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	conds := orCondition{first}
	for p.isKeyword("OR") {
		p.next()
		c, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
	}
	if len(conds) == 1 {
		return first, nil
	}
	return conds, nil
}

func (p *exprParser) parseAnd() (condition, error) {
	first, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	conds := andCondition{first}
	for p.isKeyword("AND") {
		p.next()
		c, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
	}
	if len(conds) == 1 {
		return first, nil
	}
	return conds, nil
}

func (p *exprParser) parseNot() (condition, error) {
	switch {
	case p.isKeyword("NOT"):
		p.next()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return notCondition{inner: inner}, nil
	case p.isPunct("("):
		p.next()
		c, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		return c, p.expectPunct(")")
	}

	t := p.peek()
	if t.kind == tokIdent && p.toks[p.pos+1].kind == tokPunct && p.toks[p.pos+1].text == "(" {
		return p.parseConditionFunc()
	}

	left, err := p.parseConditionOperand()
	if err != nil {
		return nil, err
	}
	op := p.peek()
	switch op.text {
	case "=", "<>", "<", "<=", ">", ">=":
		if op.kind != tokPunct {
			return nil, p.syntaxError()
		}
		p.next()
	default:
		return nil, p.syntaxError()
	}
	right, err := p.parseConditionOperand()
	if err != nil {
		return nil, err
	}
	return comparison{left: left, right: right, op: op.text}, nil
}

func (p *exprParser) parseConditionFunc() (condition, error) {
	name := p.next().text
	p.next() // (
	path, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	var c condition
	switch name {
	case "attribute_exists":
		c = existsCondition{path: path}
	case "attribute_not_exists":
		c = existsCondition{path: path, negate: true}
	case "begins_with":
		if err := p.expectPunct(","); err != nil {
			return nil, err
		}
		prefix, err := p.parseConditionOperand()
		if err != nil {
			return nil, err
		}
		c = beginsWith{path: path, prefix: prefix}
	default:
		return nil, validationf("invalid ConditionExpression: invalid function name; function: %s", name)
	}
	return c, p.expectPunct(")")
}

func (p *exprParser) parseConditionOperand() (operand, error) {
	t := p.peek()
	if t.kind == tokValue {
		p.next()
		v, err := p.resolveValue(t)
		if err != nil {
			return nil, err
		}
		return valueOperand{value: v}, nil
	}
	path, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	return pathOperand{path: path}, nil
}

// checkCondition evaluates an optional condition against the current item.
func checkCondition(cond condition, item map[string]types.AttributeValue) error {
	if cond == nil {
		return nil
	}
	ok, err := cond.holds(item)
	if err != nil {
		return err
	}
	if !ok {
		return conditionFailed()
	}
	return nil
}

// parseWriteExpressions parses the optional update and condition expressions of
// a write request against its shared placeholder maps.
func parseWriteExpressions(
	updateExpr, conditionExpr *string,
	names map[string]string,
	values map[string]types.AttributeValue,
) (*updateExpression, condition, error) {
	if names != nil && len(names) == 0 {
		return nil, nil, validationf("ExpressionAttributeNames must not be empty")
	}
	if values != nil && len(values) == 0 {
		return nil, nil, validationf("ExpressionAttributeValues must not be empty")
	}
	for k, v := range values {
		if err := validateValue(v); err != nil {
			return nil, nil, fmt.Errorf("ExpressionAttributeValues contains invalid value %s: %w", k, err)
		}
	}

	p := newExprParser(names, values)
	var (
		update *updateExpression
		cond   condition
		err    error
	)
	if updateExpr != nil {
		if update, err = p.parseUpdate(*updateExpr); err != nil {
			return nil, nil, err
		}
	}
	if conditionExpr != nil {
		if cond, err = p.parseCondition(*conditionExpr); err != nil {
			return nil, nil, err
		}
	}
	if err := p.checkUnused(); err != nil {
		return nil, nil, err
	}
	return update, cond, nil
}
