package ast

import (
	"encoding/json"
	"errors"
	"fmt"

	"sigs.k8s.io/yaml"
)

var ErrInvalidNode = errors.New("invalid predicate node")

// wireNode is the JSON/YAML form of a Node. The same document shape is
// accepted from both encodings.
type wireNode struct {
	Op       string      `json:"op"`
	Field    string      `json:"field,omitempty"`
	Value    string      `json:"value,omitempty"`
	Null     bool        `json:"null,omitempty"`
	Method   string      `json:"method,omitempty"`
	Lower    *Bound      `json:"lower,omitempty"`
	Upper    *Bound      `json:"upper,omitempty"`
	Pattern  string      `json:"pattern,omitempty"`
	Name     string      `json:"name,omitempty"`
	Fields   []string    `json:"fields,omitempty"`
	Args     []string    `json:"args,omitempty"`
	Kind     string      `json:"kind,omitempty"`
	Children []*wireNode `json:"children,omitempty"`
}

// Decode parses a predicate tree from its JSON or YAML encoding.
func Decode(data []byte) (Node, error) {
	js, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNode, err)
	}

	var w wireNode
	if err := json.Unmarshal(js, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNode, err)
	}

	return fromWire(&w)
}

// Encode returns the JSON encoding of n.
func Encode(n Node) ([]byte, error) {
	w, err := toWire(n)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func fromWire(w *wireNode) (Node, error) {
	if w == nil {
		return nil, fmt.Errorf("%w: missing node", ErrInvalidNode)
	}

	children := make([]Node, 0, len(w.Children))
	for _, c := range w.Children {
		child, err := fromWire(c)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}

	switch w.Op {
	case "eq":
		if w.Field == "" {
			return nil, fmt.Errorf("%w: 'eq' requires a field", ErrInvalidNode)
		}
		return &Equality{Field: w.Field, Value: w.Value, Null: w.Null, Method: w.Method}, nil
	case "range":
		if w.Field == "" || (w.Lower == nil && w.Upper == nil) {
			return nil, fmt.Errorf("%w: 'range' requires a field and at least one bound", ErrInvalidNode)
		}
		return &Range{Field: w.Field, Lower: w.Lower, Upper: w.Upper, Method: w.Method}, nil
	case "regex":
		if w.Field == "" {
			return nil, fmt.Errorf("%w: 'regex' requires a field", ErrInvalidNode)
		}
		return &Regex{Field: w.Field, Pattern: w.Pattern}, nil
	case "and", "or":
		if len(children) == 0 {
			return nil, fmt.Errorf("%w: '%s' requires children", ErrInvalidNode, w.Op)
		}
		if w.Op == "and" {
			return AndOf(children...), nil
		}
		return OrOf(children...), nil
	case "not":
		if len(children) != 1 {
			return nil, fmt.Errorf("%w: 'not' requires exactly one child", ErrInvalidNode)
		}
		return NotOf(children[0]), nil
	case "fn":
		if w.Name == "" {
			return nil, fmt.Errorf("%w: 'fn' requires a name", ErrInvalidNode)
		}
		return Filter(w.Name, w.Fields, w.Args...), nil
	case "marker":
		if len(children) != 1 {
			return nil, fmt.Errorf("%w: 'marker' requires exactly one child", ErrInvalidNode)
		}
		switch w.Kind {
		case MarkerDelayed.String():
			return Delayed(children[0]), nil
		case MarkerEvaluationOnly.String():
			return EvaluationOnly(children[0]), nil
		default:
			return nil, fmt.Errorf("%w: unknown marker kind '%s'", ErrInvalidNode, w.Kind)
		}
	default:
		return nil, fmt.Errorf("%w: unknown op '%s'", ErrInvalidNode, w.Op)
	}
}

func toWire(n Node) (*wireNode, error) {
	w := &wireNode{Op: n.Kind().String()}
	switch v := n.(type) {
	case *Equality:
		w.Field, w.Value, w.Null, w.Method = v.Field, v.Value, v.Null, v.Method
	case *Range:
		w.Field, w.Lower, w.Upper, w.Method = v.Field, v.Lower, v.Upper, v.Method
	case *Regex:
		w.Field, w.Pattern = v.Field, v.Pattern
	case *FilterFunction:
		w.Name, w.Fields, w.Args = v.Name, v.Fields, v.Args
	case *Marker:
		w.Kind = v.MarkerKind.String()
	case *And, *Or, *Not:
	default:
		return nil, fmt.Errorf("%w: unsupported node type %T", ErrInvalidNode, n)
	}

	for _, c := range n.Children() {
		cw, err := toWire(c)
		if err != nil {
			return nil, err
		}
		w.Children = append(w.Children, cw)
	}
	return w, nil
}
