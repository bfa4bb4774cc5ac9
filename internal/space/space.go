// Package space defines the logical and physical memory spaces and the
// execution policies derived from them.
package space

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidSpace  = errors.New("space: invalid memory space")
	ErrInvalidPolicy = errors.New("space: invalid execution policy")
)

// Logical is a memory space as requested by a caller. It is resolved to a
// Physical space before any allocation happens and is never stored.
type Logical int

const (
	LogicalHost Logical = iota
	LogicalDevice
	LogicalHostPinned
	LogicalUnified
)

// Physical is the memory space an allocation actually lives in.
type Physical int

const (
	Undefined Physical = iota
	Host
	HostPinned
	Device
	Unified
)

// Policy says where an operation on one or two buffers should run.
type Policy int

const (
	PolicyUndefined Policy = iota
	PolicyHost
	PolicyDevice
)

// Physicals lists the concrete physical spaces in reporting order.
var Physicals = []Physical{Host, HostPinned, Device, Unified}

var (
	logicalToString = map[Logical]string{
		LogicalHost:       "host",
		LogicalDevice:     "device",
		LogicalHostPinned: "host-pinned",
		LogicalUnified:    "unified",
	}
	stringToLogical = map[string]Logical{
		"host":        LogicalHost,
		"device":      LogicalDevice,
		"host-pinned": LogicalHostPinned,
		"pinned":      LogicalHostPinned,
		"unified":     LogicalUnified,
		"managed":     LogicalUnified,
	}
	physicalToString = map[Physical]string{
		Undefined:  "undefined",
		Host:       "host",
		HostPinned: "host-pinned",
		Device:     "device",
		Unified:    "unified",
	}
	physicalToLabel = map[Physical]string{
		Undefined:  "UNDEFINED",
		Host:       "HOST",
		HostPinned: "HOST PINNED",
		Device:     "DEVICE",
		Unified:    "UNIFIED",
	}
	stringToPhysical = map[string]Physical{
		"host":        Host,
		"host-pinned": HostPinned,
		"pinned":      HostPinned,
		"device":      Device,
		"unified":     Unified,
		"managed":     Unified,
	}
	policyToString = map[Policy]string{
		PolicyUndefined: "undefined",
		PolicyHost:      "host",
		PolicyDevice:    "device",
	}
	stringToPolicy = map[string]Policy{
		"host":   PolicyHost,
		"device": PolicyDevice,
	}
)

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(s, "_", "-")
}

// ParseLogical parses a logical space name such as "device" or "host-pinned".
func ParseLogical(s string) (Logical, error) {
	if l, ok := stringToLogical[normalize(s)]; ok {
		return l, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidSpace, s)
}

// ParsePhysical parses a physical space name. "undefined" is rejected.
func ParsePhysical(s string) (Physical, error) {
	if p, ok := stringToPhysical[normalize(s)]; ok {
		return p, nil
	}
	return Undefined, fmt.Errorf("%w: %q", ErrInvalidSpace, s)
}

// ParsePolicy parses "host" or "device".
func ParsePolicy(s string) (Policy, error) {
	if p, ok := stringToPolicy[normalize(s)]; ok {
		return p, nil
	}
	return PolicyUndefined, fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
}

// IsValid reports whether l is one of the known logical spaces.
func (l Logical) IsValid() bool {
	_, ok := logicalToString[l]
	return ok
}

func (l Logical) String() string {
	if s, ok := logicalToString[l]; ok {
		return s
	}
	return fmt.Sprintf("logical(%d)", int(l))
}

func (l Logical) MarshalText() ([]byte, error) {
	if !l.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSpace, int(l))
	}
	return []byte(l.String()), nil
}

func (l *Logical) UnmarshalText(data []byte) error {
	v, err := ParseLogical(string(data))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// IsValid reports whether p is a concrete physical space.
func (p Physical) IsValid() bool {
	return p >= Host && p <= Unified
}

// HostAccessible reports whether the host can dereference memory in p.
func (p Physical) HostAccessible() bool {
	return p == Host || p == HostPinned || p == Unified
}

func (p Physical) String() string {
	if s, ok := physicalToString[p]; ok {
		return s
	}
	return fmt.Sprintf("physical(%d)", int(p))
}

// Label is the upper-case name used in diagnostics and usage reports.
func (p Physical) Label() string {
	if s, ok := physicalToLabel[p]; ok {
		return s
	}
	return "UNKNOWN"
}

func (p Physical) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Physical) UnmarshalText(data []byte) error {
	if normalize(string(data)) == "undefined" {
		*p = Undefined
		return nil
	}
	v, err := ParsePhysical(string(data))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func (p Policy) String() string {
	if s, ok := policyToString[p]; ok {
		return s
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Policy) UnmarshalText(data []byte) error {
	if normalize(string(data)) == "undefined" {
		*p = PolicyUndefined
		return nil
	}
	v, err := ParsePolicy(string(data))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
