package compiler

import (
	"fmt"
	"strings"
)

// parseReference classifies a declaration string.
//
//	"${Token}"          -> ref "Token"
//	"${Token.address}"  -> ref "Token.address"
//	"$${literal}"       -> literal "${literal}"
//	"plain"             -> literal "plain"
//
// A reference must be the whole string; embedded "${" is rejected.
func parseReference(s string) (body string, isRef bool, literal string, err error) {
	if strings.HasPrefix(s, "$${") {
		return "", false, s[1:], nil
	}
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		body = s[2 : len(s)-1]
		if body == "" || strings.ContainsAny(body, "${} \t") {
			return "", false, "", fmt.Errorf("malformed reference %q", s)
		}
		for _, seg := range strings.Split(body, ".") {
			if seg == "" {
				return "", false, "", fmt.Errorf("malformed reference %q: empty segment", s)
			}
		}
		return body, true, "", nil
	}
	if strings.Contains(s, "${") {
		return "", false, "", fmt.Errorf("reference %q must be the entire value (use $${ for a literal)", s)
	}
	return "", false, s, nil
}

// resolveName maps a reference body to an action id and a result path.
//
// The longest dotted prefix matching a local logical name wins, so names
// like "Token.mint" can still be followed by a path. Otherwise the first
// two segments may name a submodule export.
func (s *moduleScope) resolveName(body string) (id string, path []string, ok bool) {
	segments := strings.Split(body, ".")
	for i := len(segments); i >= 1; i-- {
		if id, found := s.names[strings.Join(segments[:i], ".")]; found {
			return id, segments[i:], true
		}
	}
	if len(segments) >= 2 {
		if sub, found := s.subs[segments[0]]; found {
			if id, found := sub.exports[segments[1]]; found {
				return id, segments[2:], true
			}
		}
	}
	return "", nil, false
}
