package ddbstore

import (
	"cmp"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// updateExpression is a parsed UpdateExpression:
//
//	[SET action [, action] ...]
//	[REMOVE path [, path] ...]
//	[ADD path value [, path value] ...]
//	[DELETE path value [, path value] ...]
//
// SET actions are path = operand, path = operand + operand,
// path = operand - operand, if_not_exists(path, operand) and
// list_append(operand, operand).
type updateExpression struct {
	sets    []setAction
	removes []documentPath
	adds    []valueAction
	deletes []valueAction
}

type setAction struct {
	path  documentPath
	value operand
}

// valueAction is an ADD or DELETE: a path and the value placeholder it applies.
type valueAction struct {
	path  documentPath
	value types.AttributeValue
}

// operand is evaluated against the item as it was before the update.
type operand interface {
	evaluate(item map[string]types.AttributeValue) (types.AttributeValue, error)
}

type valueOperand struct {
	value types.AttributeValue
}

func (o valueOperand) evaluate(map[string]types.AttributeValue) (types.AttributeValue, error) {
	return o.value, nil
}

type pathOperand struct {
	path documentPath
}

func (o pathOperand) evaluate(item map[string]types.AttributeValue) (types.AttributeValue, error) {
	v, ok := getPath(item, o.path)
	if !ok {
		return nil, validationf("the provided expression refers to an attribute that does not exist in the item: %s", o.path)
	}
	return v, nil
}

type ifNotExists struct {
	path     documentPath
	fallback operand
}

func (o ifNotExists) evaluate(item map[string]types.AttributeValue) (types.AttributeValue, error) {
	if v, ok := getPath(item, o.path); ok {
		return v, nil
	}
	return o.fallback.evaluate(item)
}

type listAppend struct {
	left, right operand
}

func (o listAppend) evaluate(item map[string]types.AttributeValue) (types.AttributeValue, error) {
	l, err := o.left.evaluate(item)
	if err != nil {
		return nil, err
	}
	r, err := o.right.evaluate(item)
	if err != nil {
		return nil, err
	}
	ll, lok := l.(*types.AttributeValueMemberL)
	rl, rok := r.(*types.AttributeValueMemberL)
	if !lok || !rok {
		return nil, validationf("an operand in the update expression has an incorrect data type: list_append(%s, %s)", typeName(l), typeName(r))
	}
	out := make([]types.AttributeValue, 0, len(ll.Value)+len(rl.Value))
	for _, v := range ll.Value {
		out = append(out, copyAV(v))
	}
	for _, v := range rl.Value {
		out = append(out, copyAV(v))
	}
	return &types.AttributeValueMemberL{Value: out}, nil
}

type arithmetic struct {
	left, right operand
	minus       bool
}

func (o arithmetic) evaluate(item map[string]types.AttributeValue) (types.AttributeValue, error) {
	l, err := o.left.evaluate(item)
	if err != nil {
		return nil, err
	}
	r, err := o.right.evaluate(item)
	if err != nil {
		return nil, err
	}
	ln, lok := l.(*types.AttributeValueMemberN)
	rn, rok := r.(*types.AttributeValueMemberN)
	if !lok || !rok {
		return nil, validationf("an operand in the update expression has an incorrect data type: %s and %s", typeName(l), typeName(r))
	}
	sum, err := addNumbers(ln.Value, rn.Value, o.minus)
	if err != nil {
		return nil, err
	}
	return &types.AttributeValueMemberN{Value: sum}, nil
}

func (p *exprParser) parseUpdate(input string) (*updateExpression, error) {
	if strings.TrimSpace(input) == "" {
		return nil, validationf("invalid UpdateExpression: the expression can not be empty")
	}
	if err := p.reset(input); err != nil {
		return nil, err
	}
	expr := &updateExpression{}
	seen := map[string]bool{}
	for p.peek().kind != tokEOF {
		t := p.next()
		keyword := strings.ToUpper(t.text)
		if t.kind != tokIdent {
			p.pos--
			return nil, p.syntaxError()
		}
		if seen[keyword] {
			return nil, validationf("invalid UpdateExpression: the %q section can only be used once in an update expression", keyword)
		}
		seen[keyword] = true

		for {
			var err error
			switch keyword {
			case "SET":
				err = p.parseSetAction(expr)
			case "REMOVE":
				var path documentPath
				path, err = p.parsePath()
				expr.removes = append(expr.removes, path)
			case "ADD":
				var a valueAction
				a, err = p.parseValueAction()
				expr.adds = append(expr.adds, a)
			case "DELETE":
				var a valueAction
				a, err = p.parseValueAction()
				expr.deletes = append(expr.deletes, a)
			default:
				p.pos--
				return nil, p.syntaxError()
			}
			if err != nil {
				return nil, err
			}
			if !p.isPunct(",") {
				break
			}
			p.next()
		}
	}
	if err := expr.checkOverlap(); err != nil {
		return nil, err
	}
	return expr, nil
}

func (p *exprParser) parseSetAction(expr *updateExpression) error {
	path, err := p.parsePath()
	if err != nil {
		return err
	}
	if err := p.expectPunct("="); err != nil {
		return err
	}
	left, err := p.parseOperand()
	if err != nil {
		return err
	}
	value := left
	if p.isPunct("+") || p.isPunct("-") {
		minus := p.next().text == "-"
		right, err := p.parseOperand()
		if err != nil {
			return err
		}
		value = arithmetic{left: left, right: right, minus: minus}
	}
	expr.sets = append(expr.sets, setAction{path: path, value: value})
	return nil
}

func (p *exprParser) parseValueAction() (valueAction, error) {
	path, err := p.parsePath()
	if err != nil {
		return valueAction{}, err
	}
	t := p.peek()
	if t.kind != tokValue {
		return valueAction{}, p.syntaxError()
	}
	p.next()
	v, err := p.resolveValue(t)
	if err != nil {
		return valueAction{}, err
	}
	return valueAction{path: path, value: v}, nil
}

func (p *exprParser) parseOperand() (operand, error) {
	t := p.peek()
	if t.kind == tokValue {
		p.next()
		v, err := p.resolveValue(t)
		if err != nil {
			return nil, err
		}
		return valueOperand{value: v}, nil
	}
	if t.kind == tokIdent && p.toks[p.pos+1].kind == tokPunct && p.toks[p.pos+1].text == "(" {
		p.next()
		p.next()
		switch t.text {
		case "if_not_exists":
			path, err := p.parsePath()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct(","); err != nil {
				return nil, err
			}
			fallback, err := p.parseOperand()
			if err != nil {
				return nil, err
			}
			return ifNotExists{path: path, fallback: fallback}, p.expectPunct(")")
		case "list_append":
			left, err := p.parseOperand()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct(","); err != nil {
				return nil, err
			}
			right, err := p.parseOperand()
			if err != nil {
				return nil, err
			}
			return listAppend{left: left, right: right}, p.expectPunct(")")
		default:
			return nil, validationf("invalid UpdateExpression: invalid function name; function: %s", t.text)
		}
	}
	path, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	return pathOperand{path: path}, nil
}

// paths lists every document path the expression writes.
func (e *updateExpression) paths() []documentPath {
	var out []documentPath
	for _, s := range e.sets {
		out = append(out, s.path)
	}
	out = append(out, e.removes...)
	for _, a := range e.adds {
		out = append(out, a.path)
	}
	for _, d := range e.deletes {
		out = append(out, d.path)
	}
	return out
}

func (e *updateExpression) checkOverlap() error {
	paths := e.paths()
	for i := range paths {
		for j := i + 1; j < len(paths); j++ {
			if paths[i].overlaps(paths[j]) {
				return validationf("invalid UpdateExpression: two document paths overlap with each other; must remove or rewrite one of these paths; path one: [%s], path two: [%s]", paths[i], paths[j])
			}
		}
	}
	return nil
}

// updatedAttributes are the top-level attributes the expression touches.
func (e *updateExpression) updatedAttributes() []string {
	var out []string
	for _, p := range e.paths() {
		if !slices.Contains(out, p.attribute()) {
			out = append(out, p.attribute())
		}
	}
	return out
}

// apply evaluates the expression against old and returns the new item.
// old is not modified. All operands see old; SET, REMOVE, ADD and DELETE are
// then applied in that order.
func (e *updateExpression) apply(old map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	if old == nil {
		old = map[string]types.AttributeValue{}
	}
	values := make([]types.AttributeValue, len(e.sets))
	for i, s := range e.sets {
		v, err := s.value.evaluate(old)
		if err != nil {
			return nil, err
		}
		values[i] = copyAV(v)
	}

	item := copyItem(old)
	for i, s := range e.sets {
		if err := setPath(item, s.path, values[i]); err != nil {
			return nil, err
		}
	}

	// Indexes refer to the list before the update, so remove from the back.
	removes := slices.Clone(e.removes)
	slices.SortStableFunc(removes, func(a, b documentPath) int {
		return -comparePaths(a, b)
	})
	for _, path := range removes {
		removePath(item, path)
	}

	for _, a := range e.adds {
		if err := applyAdd(item, a); err != nil {
			return nil, err
		}
	}
	for _, d := range e.deletes {
		if err := applyDelete(item, d); err != nil {
			return nil, err
		}
	}
	return item, nil
}

func comparePaths(a, b documentPath) int {
	for i := 0; i < min(len(a), len(b)); i++ {
		x, y := a[i], b[i]
		if x.isIndex && y.isIndex {
			if c := cmp.Compare(x.index, y.index); c != 0 {
				return c
			}
			continue
		}
		if c := cmp.Compare(x.name, y.name); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(a), len(b))
}

func applyAdd(item map[string]types.AttributeValue, a valueAction) error {
	if !isSet(a.value) {
		if _, ok := a.value.(*types.AttributeValueMemberN); !ok {
			return validationf("invalid UpdateExpression: incorrect operand type for operator or function; operator: ADD, operand type: %s", typeName(a.value))
		}
	}
	existing, ok := getPath(item, a.path)
	if !ok {
		return setPath(item, a.path, copyAV(a.value))
	}
	switch ev := existing.(type) {
	case *types.AttributeValueMemberN:
		delta, isNum := a.value.(*types.AttributeValueMemberN)
		if !isNum {
			return validationf("an operand in the update expression has an incorrect data type: ADD %s to N", typeName(a.value))
		}
		sum, err := addNumbers(ev.Value, delta.Value, false)
		if err != nil {
			return err
		}
		return setPath(item, a.path, &types.AttributeValueMemberN{Value: sum})
	default:
		if typeName(existing) != typeName(a.value) {
			return validationf("an operand in the update expression has an incorrect data type: ADD %s to %s", typeName(a.value), typeName(existing))
		}
		elems := setElements(existing)
		for _, e := range setElements(a.value) {
			if !containsElement(elems, e) {
				elems = append(elems, e)
			}
		}
		return setPath(item, a.path, buildSet(existing, elems))
	}
}

func applyDelete(item map[string]types.AttributeValue, d valueAction) error {
	if !isSet(d.value) {
		return validationf("invalid UpdateExpression: incorrect operand type for operator or function; operator: DELETE, operand type: %s", typeName(d.value))
	}
	existing, ok := getPath(item, d.path)
	if !ok {
		return nil
	}
	if typeName(existing) != typeName(d.value) {
		return validationf("an operand in the update expression has an incorrect data type: DELETE %s from %s", typeName(d.value), typeName(existing))
	}
	remove := setElements(d.value)
	var kept []types.AttributeValue
	for _, e := range setElements(existing) {
		if !containsElement(remove, e) {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		removePath(item, d.path)
		return nil
	}
	return setPath(item, d.path, buildSet(existing, kept))
}
