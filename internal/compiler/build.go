package compiler

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/ignis/internal/ir"
)

var (
	moduleNamePattern  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	logicalNamePattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.\-]*$`)
	exportNamePattern  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// moduleScope is the resolution context of one built module.
type moduleScope struct {
	decl    *Declaration
	names   map[string]string // logical name -> action id
	exports map[string]string // export name -> action id
	subs    map[string]*moduleScope
}

type builder struct {
	actions map[string]*ir.Action
	modules map[string]*moduleScope
	errs    []error
}

// Build turns a declaration tree into a validated action graph.
//
// Build is pure: the same declaration always yields the same graph, with
// the same action ids, dependencies and topological order. All validation
// errors are collected and returned together via errors.Join; cycle
// detection runs only once every reference resolved.
func Build(decl *Declaration) (*ir.Graph, error) {
	if decl == nil {
		return nil, fmt.Errorf("build: nil declaration")
	}

	b := &builder{
		actions: make(map[string]*ir.Action),
		modules: make(map[string]*moduleScope),
	}
	root := b.buildModule(decl)
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}

	g := &ir.Graph{
		Module:     decl.Module,
		Actions:    b.actions,
		Exports:    root.exports,
		Dependents: dependents(b.actions),
	}

	if cycles := findCycles(b.actions); len(cycles) > 0 {
		errs := make([]error, len(cycles))
		for i, c := range cycles {
			errs[i] = &CyclicDependencyError{Cycle: c}
		}
		return nil, errors.Join(errs...)
	}

	g.Order = topoOrder(b.actions, g.Dependents)
	return g, nil
}

func (b *builder) fail(err error) {
	b.errs = append(b.errs, err)
}

// buildModule builds decl and its submodules once per module name.
func (b *builder) buildModule(decl *Declaration) *moduleScope {
	if existing, ok := b.modules[decl.Module]; ok {
		if !reflect.DeepEqual(existing.decl, decl) {
			b.fail(&DuplicateModuleError{Module: decl.Module})
		}
		return existing
	}

	scope := &moduleScope{
		decl:    decl,
		names:   make(map[string]string),
		exports: make(map[string]string),
		subs:    make(map[string]*moduleScope),
	}
	b.modules[decl.Module] = scope

	if !moduleNamePattern.MatchString(decl.Module) {
		b.fail(&InvalidActionError{Module: decl.Module, Field: "module", Message: "module name must be an identifier"})
		return scope
	}

	for i := range decl.Modules {
		sub := b.buildModule(&decl.Modules[i])
		scope.subs[decl.Modules[i].Module] = sub
	}

	// Pass 1: assign logical names and ids.
	names := make([]string, len(decl.Actions))
	sends := 0
	for i := range decl.Actions {
		a := &decl.Actions[i]
		if a.Kind == string(ir.KindSendValue) {
			sends++
		}
		name := a.logicalName(sends)
		names[i] = name

		if !ir.ValidKinds[ir.Kind(a.Kind)] {
			b.fail(&InvalidActionError{Module: decl.Module, Action: name, Field: "kind", Message: fmt.Sprintf("unknown kind %q", a.Kind)})
			continue
		}
		if name == "" {
			b.fail(&InvalidActionError{Module: decl.Module, Field: "id", Message: fmt.Sprintf("cannot derive a name for %s action", a.Kind)})
			continue
		}
		if !logicalNamePattern.MatchString(name) {
			b.fail(&InvalidActionError{Module: decl.Module, Action: name, Field: "id", Message: "invalid logical name"})
			continue
		}
		if _, dup := scope.names[name]; dup {
			b.fail(&DuplicateActionError{Module: decl.Module, Name: name})
			continue
		}
		scope.names[name] = ir.ActionID(decl.Module, name)
	}

	// Pass 2: inputs and dependencies.
	for i := range decl.Actions {
		name := names[i]
		id, ok := scope.names[name]
		if !ok || b.actions[id] != nil {
			continue
		}
		action, ok := b.buildAction(scope, name, &decl.Actions[i])
		if ok {
			b.actions[id] = action
		}
	}

	exportNames := make([]string, 0, len(decl.Exports))
	for k := range decl.Exports {
		exportNames = append(exportNames, k)
	}
	slices.Sort(exportNames)
	for _, export := range exportNames {
		target := decl.Exports[export]
		if !exportNamePattern.MatchString(export) {
			b.fail(&InvalidActionError{Module: decl.Module, Field: "exports", Message: fmt.Sprintf("invalid export name %q", export)})
			continue
		}
		id, path, ok := scope.resolveName(strings.TrimSuffix(strings.TrimPrefix(target, "${"), "}"))
		if !ok || len(path) > 0 {
			b.fail(&UnresolvedReferenceError{Module: decl.Module, Reference: target})
			continue
		}
		scope.exports[export] = id
	}

	return scope
}

func (b *builder) buildAction(scope *moduleScope, name string, a *ActionDecl) (*ir.Action, bool) {
	module := scope.decl.Module
	kind := ir.Kind(a.Kind)
	before := len(b.errs)

	invalid := func(field, msg string) {
		b.fail(&InvalidActionError{Module: module, Action: name, Field: field, Message: msg})
	}
	forbid := func(field string, set bool) {
		if set {
			invalid(field, fmt.Sprintf("not allowed for %s", kind))
		}
	}

	inputs := ir.Object{}
	switch kind {
	case ir.KindDeployInstance:
		if a.Contract == "" {
			invalid("contract", "required")
		}
		forbid("target", a.Target != "")
		forbid("method", a.Method != "")
		forbid("to", a.To != nil)
		forbid("address", a.Address != nil)
		inputs["contract"] = ir.String(a.Contract)
		inputs["args"] = b.convertArgs(scope, name, a.Args)
		if a.Value != nil {
			inputs["value"] = b.convert(scope, name, "value", a.Value)
		}

	case ir.KindStaticReference:
		if a.Contract == "" {
			invalid("contract", "required")
		}
		if a.Address == nil {
			invalid("address", "required")
		}
		forbid("target", a.Target != "")
		forbid("method", a.Method != "")
		forbid("args", len(a.Args) > 0)
		forbid("value", a.Value != nil)
		forbid("to", a.To != nil)
		forbid("from", a.From != "")
		inputs["contract"] = ir.String(a.Contract)
		if a.Address != nil {
			inputs["address"] = b.convert(scope, name, "address", a.Address)
		}

	case ir.KindInvokeMethod, ir.KindReadValue:
		if a.Target == "" {
			invalid("target", "required")
		}
		if a.Method == "" {
			invalid("method", "required")
		}
		forbid("contract", a.Contract != "")
		forbid("to", a.To != nil)
		forbid("address", a.Address != nil)
		if kind == ir.KindReadValue {
			forbid("value", a.Value != nil)
		}
		if a.Target != "" {
			inputs["target"] = b.targetRef(scope, name, a.Target)
		}
		inputs["method"] = ir.String(a.Method)
		inputs["args"] = b.convertArgs(scope, name, a.Args)
		if a.Value != nil {
			inputs["value"] = b.convert(scope, name, "value", a.Value)
		}

	case ir.KindSendValue:
		if a.To == nil {
			invalid("to", "required")
		}
		if a.Value == nil {
			invalid("value", "required")
		}
		forbid("contract", a.Contract != "")
		forbid("target", a.Target != "")
		forbid("method", a.Method != "")
		forbid("args", len(a.Args) > 0)
		forbid("address", a.Address != nil)
		if a.To != nil {
			inputs["to"] = b.convert(scope, name, "to", a.To)
		}
		if a.Value != nil {
			inputs["value"] = b.convert(scope, name, "value", a.Value)
		}
	}
	if a.From != "" && kind != ir.KindStaticReference {
		inputs["from"] = ir.String(a.From)
	}

	deps := make(map[string]bool)
	for _, ref := range ir.Refs(inputs) {
		deps[ref.Action] = true
	}
	for _, after := range a.After {
		id, path, ok := scope.resolveName(after)
		if !ok || len(path) > 0 {
			b.fail(&UnresolvedReferenceError{Module: module, Action: name, Reference: after})
			continue
		}
		deps[id] = true
	}

	if len(b.errs) > before {
		return nil, false
	}

	sorted := make([]string, 0, len(deps))
	for d := range deps {
		sorted = append(sorted, d)
	}
	slices.Sort(sorted)

	return &ir.Action{
		ID:           scope.names[name],
		Module:       module,
		Name:         name,
		Kind:         kind,
		Inputs:       inputs,
		Dependencies: sorted,
	}, true
}

// targetRef resolves the instance an invoke or read is aimed at. The
// target may be written bare ("Token") or as a reference ("${Token}").
func (b *builder) targetRef(scope *moduleScope, action, target string) ir.Value {
	body := strings.TrimSuffix(strings.TrimPrefix(target, "${"), "}")
	id, path, ok := scope.resolveName(body)
	if !ok {
		b.fail(&UnresolvedReferenceError{Module: scope.decl.Module, Action: action, Reference: target})
		return ir.Null{}
	}
	return newRef(id, path)
}

func (b *builder) convertArgs(scope *moduleScope, action string, args []any) ir.Array {
	arr := make(ir.Array, len(args))
	for i, arg := range args {
		arr[i] = b.convert(scope, action, fmt.Sprintf("args[%d]", i), arg)
	}
	return arr
}

// convert turns a decoded declaration value into an ir.Value, replacing
// reference strings with ir.Ref.
func (b *builder) convert(scope *moduleScope, action, field string, v any) ir.Value {
	module := scope.decl.Module
	switch val := v.(type) {
	case string:
		body, isRef, literal, err := parseReference(val)
		if err != nil {
			b.fail(&InvalidActionError{Module: module, Action: action, Field: field, Message: err.Error()})
			return ir.Null{}
		}
		if !isRef {
			return ir.String(literal)
		}
		id, path, ok := scope.resolveName(body)
		if !ok {
			b.fail(&UnresolvedReferenceError{Module: module, Action: action, Reference: val})
			return ir.Null{}
		}
		return newRef(id, path)
	case []any:
		arr := make(ir.Array, len(val))
		for i, elem := range val {
			arr[i] = b.convert(scope, action, fmt.Sprintf("%s[%d]", field, i), elem)
		}
		return arr
	case map[string]any:
		obj := make(ir.Object, len(val))
		for k, elem := range val {
			obj[k] = b.convert(scope, action, field+"."+k, elem)
		}
		return obj
	default:
		conv, err := ir.FromAny(v)
		if err != nil {
			b.fail(&InvalidActionError{Module: module, Action: action, Field: field, Message: err.Error()})
			return ir.Null{}
		}
		return conv
	}
}

func newRef(id string, path []string) ir.Ref {
	if len(path) == 0 {
		return ir.Ref{Action: id}
	}
	return ir.Ref{Action: id, Path: slices.Clone(path)}
}

// dependents inverts the dependency edges. Each list is sorted.
func dependents(actions map[string]*ir.Action) map[string][]string {
	out := make(map[string][]string, len(actions))
	for id, a := range actions {
		for _, dep := range a.Dependencies {
			out[dep] = append(out[dep], id)
		}
	}
	for id := range out {
		slices.Sort(out[id])
	}
	return out
}

// topoOrder is Kahn's algorithm with ties broken by action id.
func topoOrder(actions map[string]*ir.Action, deps map[string][]string) []string {
	indegree := make(map[string]int, len(actions))
	var ready []string
	for id, a := range actions {
		indegree[id] = len(a.Dependencies)
		if len(a.Dependencies) == 0 {
			ready = append(ready, id)
		}
	}
	slices.Sort(ready)

	order := make([]string, 0, len(actions))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, next := range deps[id] {
			indegree[next]--
			if indegree[next] == 0 {
				pos, _ := slices.BinarySearch(ready, next)
				ready = slices.Insert(ready, pos, next)
			}
		}
	}
	return order
}
