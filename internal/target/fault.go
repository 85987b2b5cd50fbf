package target

import (
	"fmt"
	"sort"
	"strings"
)

// Fault is an injected misbehavior for one action id.
type Fault string

const (
	// FaultFail makes the call revert.
	FaultFail Fault = "fail"
	// FaultTimeout makes the call hang until its context expires.
	FaultTimeout Fault = "timeout"
	// FaultPending accepts the call but leaves the outcome unknown; Poll
	// settles it.
	FaultPending Fault = "pending"
	// FaultUnavailable refuses the call before anything is submitted.
	FaultUnavailable Fault = "unavailable"
)

var validFaults = map[Fault]bool{
	FaultFail:        true,
	FaultTimeout:     true,
	FaultPending:     true,
	FaultUnavailable: true,
}

// ParseFault validates a fault name.
func ParseFault(s string) (Fault, error) {
	f := Fault(strings.TrimSpace(s))
	if !validFaults[f] {
		names := make([]string, 0, len(validFaults))
		for name := range validFaults {
			names = append(names, string(name))
		}
		sort.Strings(names)
		return "", fmt.Errorf("unknown fault %q (want one of %s)", s, strings.Join(names, ", "))
	}
	return f, nil
}

// ParseFaultSpec parses "action-id=fault", the CLI's --fail syntax. A bare
// action id means FaultFail.
func ParseFaultSpec(arg string) (string, Fault, error) {
	id, name, found := strings.Cut(arg, "=")
	id = strings.TrimSpace(id)
	if id == "" {
		return "", "", fmt.Errorf("fault %q: action id is required", arg)
	}
	if !found {
		return id, FaultFail, nil
	}
	f, err := ParseFault(name)
	if err != nil {
		return "", "", fmt.Errorf("fault for %s: %w", id, err)
	}
	return id, f, nil
}
