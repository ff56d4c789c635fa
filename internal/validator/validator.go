// Package validator statically vets sandboxed source code against the
// security policy. It parses the code into a syntax tree and walks it,
// accumulating human-readable violations; the code is never executed here.
package validator

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"

	"github.com/oneprompteu/oneprompt/internal/policy"
)

// Outcome is the result of validating one piece of source code.
// Violations are ordered as discovered: tree walk first, then the regex pass.
type Outcome struct {
	Valid      bool     `json:"is_valid"`
	Violations []string `json:"violations"`
}

// Validator checks source code against a policy set. Safe for concurrent
// use; all state lives on the per-call walker.
type Validator struct {
	policy *policy.Set
}

// New returns a Validator backed by the given policy tables.
func New(p *policy.Set) *Validator {
	return &Validator{policy: p}
}

// Validate parses and inspects code. A parse failure short-circuits with a
// single syntax violation; every other check accumulates.
func (v *Validator) Validate(code string) Outcome {
	program, err := parser.ParseFile(nil, "user_code.js", code, 0)
	if err != nil {
		return Outcome{
			Valid:      false,
			Violations: []string{fmt.Sprintf("syntax error: %s", firstParseError(err))},
		}
	}

	w := &walker{policy: v.policy}
	walk(reflect.ValueOf(program), w.inspect)
	violations := w.violations

	// Defense in depth: regex rules over the raw source catch obfuscated
	// constructions the tree walk cannot see.
	for _, rule := range v.policy.Patterns {
		if rule.Pattern.MatchString(code) {
			violations = append(violations, rule.Message)
		}
	}

	return Outcome{Valid: len(violations) == 0, Violations: violations}
}

// firstParseError trims a parser error list down to its first entry; one
// syntax message is enough for the caller to fix and resubmit.
func firstParseError(err error) string {
	if list, ok := err.(parser.ErrorList); ok && len(list) > 0 {
		return list[0].Error()
	}
	return err.Error()
}

// walker records policy violations as the traversal feeds it nodes.
type walker struct {
	policy     *policy.Set
	violations []string
}

func (w *walker) inspect(n ast.Node) {
	switch node := n.(type) {
	case *ast.CallExpression:
		w.checkCall(node.Callee, node.ArgumentList)
	case *ast.NewExpression:
		// new Function("...") is eval by another name.
		w.checkCall(node.Callee, node.ArgumentList)
	case *ast.DotExpression:
		w.checkAttribute(node.Identifier.Name.String())
	case *ast.BracketExpression:
		if lit, ok := node.Member.(*ast.StringLiteral); ok {
			w.checkAttribute(lit.Value.String())
		}
	}
}

// walk visits every node in the tree in source order. goja's ast package
// declares the node types but no traversal helper, so this recurses over
// the exported fields of each node by reflection: pointers implementing
// ast.Node are visited, interfaces and slices are unwrapped, and struct
// fields are walked in declaration order. Non-node pointers (such as the
// source file metadata hanging off Program) are left alone. DeclarationList
// fields alias bindings already present in the statement body and are
// skipped so no subtree is visited twice.
func walk(v reflect.Value, visit func(ast.Node)) {
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return
		}
		n, ok := v.Interface().(ast.Node)
		if !ok {
			return
		}
		visit(n)
		walk(v.Elem(), visit)
	case reflect.Interface:
		if v.IsNil() {
			return
		}
		walk(v.Elem(), visit)
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			if t.Field(i).Name == "DeclarationList" {
				continue
			}
			if f := v.Field(i); f.CanInterface() {
				walk(f, visit)
			}
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			walk(v.Index(i), visit)
		}
	}
}

func (w *walker) checkCall(callee ast.Expression, args []ast.Expression) {
	switch c := callee.(type) {
	case *ast.Identifier:
		name := c.Name.String()
		if name == "require" {
			w.checkRequire(args)
			return
		}
		if _, denied := w.policy.DeniedBuiltins[name]; denied {
			w.violations = append(w.violations,
				fmt.Sprintf("blocked function: '%s()' is not permitted", name))
		}
	case *ast.DotExpression:
		// Handled by the DotExpression case in Enter as well, but method
		// calls through denied members are flagged here so the message
		// names the call rather than the bare access.
		if _, denied := w.policy.DeniedAttributes[c.Identifier.Name.String()]; denied {
			w.violations = append(w.violations,
				fmt.Sprintf("blocked access: '.%s' is not permitted", c.Identifier.Name.String()))
		}
	}
}

// checkRequire vets a require() call. Only string-literal module names can
// be checked statically, so anything else is rejected outright.
func (w *walker) checkRequire(args []ast.Expression) {
	if len(args) != 1 {
		w.violations = append(w.violations, "require() takes exactly one module name")
		return
	}
	lit, ok := args[0].(*ast.StringLiteral)
	if !ok {
		w.violations = append(w.violations, "require() with a dynamic argument is not permitted")
		return
	}
	w.checkModule(lit.Value.String())
}

// checkModule applies the allow/deny tables to a module path. The top-level
// segment is the unit of policy: "stats/summary" is fine when "stats" is.
func (w *walker) checkModule(name string) {
	top := name
	if i := strings.IndexByte(name, '/'); i >= 0 {
		top = name[:i]
	}
	if _, denied := w.policy.DeniedModules[top]; denied {
		w.violations = append(w.violations,
			fmt.Sprintf("blocked module: '%s' is not permitted", top))
		return
	}
	if _, allowed := w.policy.AllowedModules[top]; !allowed {
		w.violations = append(w.violations,
			fmt.Sprintf("module not permitted: '%s'. Only data-analysis modules are available", top))
	}
}

func (w *walker) checkAttribute(name string) {
	if _, denied := w.policy.DeniedAttributes[name]; denied {
		w.violations = append(w.violations,
			fmt.Sprintf("blocked access: '.%s' is not permitted", name))
	}
}
