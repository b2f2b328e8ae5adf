package eval

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/shardquery/shardquery/pkg/ast"
	"github.com/shardquery/shardquery/pkg/document"
	"github.com/shardquery/shardquery/pkg/iterator"
)

// Filter function names.
const (
	FuncIncludeRegex          = "includeRegex"
	FuncExcludeRegex          = "excludeRegex"
	FuncIncludeText           = "includeText"
	FuncIsNull                = "isNull"
	FuncIsNotNull             = "isNotNull"
	FuncMatchesAtLeastCountOf = "matchesAtLeastCountOf"
	FuncOccurrence            = "occurrence"
	FuncCEL                   = "cel"
)

// filter function regexes ignore case, like the index side of string fields.
const functionRegexFlags = "(?i)"

func (c *compiler) function(f *ast.FilterFunction) (predicate, error) {
	fail := func(format string, args ...any) (predicate, error) {
		return nil, &CompilationError{Node: f.String(), Cause: fmt.Errorf(format, args...)}
	}
	if len(f.Fields) == 0 && f.Name != FuncCEL {
		return fail("%s requires at least one field", f.Name)
	}
	fields := f.Fields

	switch f.Name {
	case FuncIncludeRegex, FuncExcludeRegex:
		if len(f.Args) != 1 {
			return fail("%s takes one pattern", f.Name)
		}
		re, err := iterator.CompileFullMatch(f.Args[0], functionRegexFlags)
		if err != nil {
			return fail("%w", err)
		}
		exclude := f.Name == FuncExcludeRegex
		return func(doc *document.Document) (bool, error) {
			return anyValue(doc, fields, func(a document.Attribute) bool { return matches(re, a) }) != exclude, nil
		}, nil

	case FuncIncludeText:
		if len(f.Args) != 1 {
			return fail("%s takes one value", f.Name)
		}
		want := f.Args[0]
		return func(doc *document.Document) (bool, error) {
			return anyValue(doc, fields, func(a document.Attribute) bool { return a.Raw == want }), nil
		}, nil

	case FuncIsNull, FuncIsNotNull:
		if len(f.Args) != 0 {
			return fail("%s takes no arguments", f.Name)
		}
		notNull := f.Name == FuncIsNotNull
		return func(doc *document.Document) (bool, error) {
			return anyValue(doc, fields, func(document.Attribute) bool { return true }) == notNull, nil
		}, nil

	case FuncMatchesAtLeastCountOf:
		if len(f.Args) < 2 {
			return fail("%s takes a count and at least one pattern", f.Name)
		}
		count, err := strconv.Atoi(f.Args[0])
		if err != nil || count < 1 {
			return fail("invalid count '%s'", f.Args[0])
		}
		patterns := make([]*regexp.Regexp, 0, len(f.Args)-1)
		for _, p := range f.Args[1:] {
			re, err := iterator.CompileFullMatch(p, functionRegexFlags)
			if err != nil {
				return fail("%w", err)
			}
			patterns = append(patterns, re)
		}
		return func(doc *document.Document) (bool, error) {
			matched := map[string]struct{}{}
			for _, re := range patterns {
				for _, field := range fields {
					for _, a := range doc.Get(field) {
						if matches(re, a) {
							matched[field+"\x00"+a.Raw] = struct{}{}
						}
					}
				}
				if len(matched) >= count {
					return true, nil
				}
			}
			return false, nil
		}, nil

	case FuncOccurrence:
		if len(f.Args) != 2 {
			return fail("%s takes an operator and a count", f.Name)
		}
		cmp, ok := comparators[f.Args[0]]
		if !ok {
			return fail("unknown operator '%s'", f.Args[0])
		}
		count, err := strconv.Atoi(f.Args[1])
		if err != nil {
			return fail("invalid count '%s'", f.Args[1])
		}
		return func(doc *document.Document) (bool, error) {
			n := 0
			for _, field := range fields {
				n += len(doc.Get(field))
			}
			return cmp(n, count), nil
		}, nil

	case FuncCEL:
		if len(f.Args) != 1 {
			return fail("%s takes one expression", f.Name)
		}
		expr, err := compileCEL(f)
		if err != nil {
			return nil, err
		}
		return expr.evaluate, nil

	default:
		return fail("unknown filter function '%s'", f.Name)
	}
}

var comparators = map[string]func(a, b int) bool{
	"==": func(a, b int) bool { return a == b },
	"!=": func(a, b int) bool { return a != b },
	"<":  func(a, b int) bool { return a < b },
	"<=": func(a, b int) bool { return a <= b },
	">":  func(a, b int) bool { return a > b },
	">=": func(a, b int) bool { return a >= b },
}

func anyValue(doc *document.Document, fields []string, fn func(document.Attribute) bool) bool {
	for _, field := range fields {
		for _, a := range doc.Get(field) {
			if fn(a) {
				return true
			}
		}
	}
	return false
}

// matches tries the raw value first and falls back to the normalized one.
func matches(re *regexp.Regexp, a document.Attribute) bool {
	return re.MatchString(a.Raw) || re.MatchString(a.Normalized)
}
