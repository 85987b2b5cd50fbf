package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
)

// Domain prefixes for content-addressed identity.
// The version suffix enables future algorithm migration.
const (
	DomainIdempotency = "ignis/idempotency/v1"
	DomainInputs      = "ignis/inputs/v1"
	DomainShape       = "ignis/shape/v1"
	DomainGraph       = "ignis/graph/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ActionID returns the stable identifier of a logical action within a module.
// The same module and logical name always yield the same id.
func ActionID(module, name string) string {
	return module + "#" + name
}

// IdempotencyKey correlates an action with its journal history.
// It depends only on the action id and the deployment identity, never on
// inputs, so a changed input is detected by comparison rather than silently
// treated as a new action.
func IdempotencyKey(actionID string, dep DeploymentID) (string, error) {
	obj := Object{
		"action_id":   String(actionID),
		"module":      String(dep.Module),
		"environment": String(dep.Environment),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("IdempotencyKey: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainIdempotency, canonical), nil
}

// InputsHash fingerprints an action's declared inputs.
func InputsHash(inputs Object) (string, error) {
	canonical, err := MarshalCanonical(inputs)
	if err != nil {
		return "", fmt.Errorf("InputsHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainInputs, canonical), nil
}

// ShapeHash fingerprints the declared shape of an action: its kind and
// dependency set. Two builds that assign the same id to different shapes
// are a redefinition.
func ShapeHash(kind Kind, deps []string) (string, error) {
	sorted := slices.Clone(deps)
	slices.Sort(sorted)
	arr := make(Array, len(sorted))
	for i, d := range sorted {
		arr[i] = String(d)
	}
	canonical, err := MarshalCanonical(Object{
		"kind":         String(kind),
		"dependencies": arr,
	})
	if err != nil {
		return "", fmt.Errorf("ShapeHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainShape, canonical), nil
}

// MustIdempotencyKey is like IdempotencyKey but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustIdempotencyKey(actionID string, dep DeploymentID) string {
	key, err := IdempotencyKey(actionID, dep)
	if err != nil {
		panic(err)
	}
	return key
}

// MustInputsHash is like InputsHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustInputsHash(inputs Object) string {
	h, err := InputsHash(inputs)
	if err != nil {
		panic(err)
	}
	return h
}
