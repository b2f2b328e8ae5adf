package eval

import (
	"fmt"
	"reflect"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common"

	"github.com/shardquery/shardquery/pkg/ast"
	"github.com/shardquery/shardquery/pkg/document"
)

// celExpression is a compiled cel filter. Every field named by the filter
// is declared as a list variable holding the typed values of the field.
type celExpression struct {
	node    string
	fields  []string
	program cel.Program
}

func compileCEL(f *ast.FilterFunction) (*celExpression, error) {
	envOpts := make([]cel.EnvOption, 0, len(f.Fields))
	for _, field := range f.Fields {
		envOpts = append(envOpts, cel.Variable(field, cel.ListType(cel.DynType)))
	}

	env, err := cel.NewEnv(envOpts...)
	if err != nil {
		return nil, &CompilationError{Node: f.String(), Cause: err}
	}

	source := common.NewStringSource(f.Args[0], f.Name)
	checked, issues := env.CompileSource(source)
	if issues != nil {
		if err := issues.Err(); err != nil {
			return nil, &CompilationError{Node: f.String(), Cause: err}
		}
	}

	out := checked.OutputType()
	if !reflect.DeepEqual(out, cel.BoolType) && !reflect.DeepEqual(out, cel.DynType) {
		return nil, &CompilationError{
			Node:  f.String(),
			Cause: fmt.Errorf("expected a bool expression output, but got '%s'", out),
		}
	}

	prg, err := env.Program(checked)
	if err != nil {
		return nil, &CompilationError{
			Node:  f.String(),
			Cause: fmt.Errorf("expression construction: %w", err),
		}
	}

	return &celExpression{node: f.String(), fields: f.Fields, program: prg}, nil
}

func (e *celExpression) evaluate(doc *document.Document) (bool, error) {
	vars := make(map[string]any, len(e.fields))
	for _, field := range e.fields {
		attrs := doc.Get(field)
		values := make([]any, len(attrs))
		for i, a := range attrs {
			values[i] = a.Value
		}
		vars[field] = values
	}

	out, _, err := e.program.Eval(vars)
	if err != nil {
		return false, &EvaluationError{Node: e.node, Cause: err}
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, &EvaluationError{Node: e.node, Cause: fmt.Errorf("expression returned %T, not bool", out.Value())}
	}
	return result, nil
}
