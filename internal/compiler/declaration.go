package compiler

import "fmt"

// Declaration is the decoded form of a deployment module file.
//
// The same struct is filled from YAML, JSON and CUE sources. Scalar inputs
// (args, value, to, address) stay untyped here and are converted to ir
// values by Build.
type Declaration struct {
	Module  string            `json:"module" yaml:"module"`
	Actions []ActionDecl      `json:"actions" yaml:"actions"`
	Exports map[string]string `json:"exports,omitempty" yaml:"exports,omitempty"`
	Modules []Declaration     `json:"modules,omitempty" yaml:"modules,omitempty"`
}

// ActionDecl declares one unit of deployment work.
//
// ID is the optional logical name. When empty a default is derived from
// the kind: the contract name for deploy-instance and static-reference,
// "<target>.<method>" for invoke-method and read-value, and SendValue_<n>
// for send-value.
type ActionDecl struct {
	ID       string   `json:"id,omitempty" yaml:"id,omitempty"`
	Kind     string   `json:"kind" yaml:"kind"`
	Contract string   `json:"contract,omitempty" yaml:"contract,omitempty"`
	Target   string   `json:"target,omitempty" yaml:"target,omitempty"`
	Method   string   `json:"method,omitempty" yaml:"method,omitempty"`
	Args     []any    `json:"args,omitempty" yaml:"args,omitempty"`
	Value    any      `json:"value,omitempty" yaml:"value,omitempty"`
	To       any      `json:"to,omitempty" yaml:"to,omitempty"`
	Address  any      `json:"address,omitempty" yaml:"address,omitempty"`
	From     string   `json:"from,omitempty" yaml:"from,omitempty"`
	After    []string `json:"after,omitempty" yaml:"after,omitempty"`
}

// logicalName returns the declared or derived logical name. sendIndex is
// the 1-based position of the action among the module's send-value actions.
func (a *ActionDecl) logicalName(sendIndex int) string {
	if a.ID != "" {
		return a.ID
	}
	switch a.Kind {
	case "deploy-instance", "static-reference":
		return a.Contract
	case "invoke-method", "read-value":
		if a.Target == "" || a.Method == "" {
			return ""
		}
		return a.Target + "." + a.Method
	case "send-value":
		return fmt.Sprintf("SendValue_%d", sendIndex)
	}
	return ""
}
