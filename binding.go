package dispatch

import "fmt"

// Role describes how a kernel uses a bound buffer. Roles are informational
// for the core; backends may use them to pick a binding type.
type Role int

const (
	// RoleInput is a buffer the kernel only reads.
	RoleInput Role = iota
	// RoleOutput is a buffer the kernel writes.
	RoleOutput
	// RoleInOut is a buffer the kernel reads and writes.
	RoleInOut
)

// String returns the string representation of Role.
func (r Role) String() string {
	switch r {
	case RoleInput:
		return "Input"
	case RoleOutput:
		return "Output"
	case RoleInOut:
		return "InOut"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Writable reports whether the kernel may write a buffer with this role.
func (r Role) Writable() bool { return r == RoleOutput || r == RoleInOut }

// Binding assigns a role to an argument slot.
type Binding struct {
	Slot int
	Role Role
}

// DefaultBufferCount is the number of slots in the default layout.
const DefaultBufferCount = 3

// DefaultBindings returns the default layout: slots 0 and 1 are inputs,
// slot 2 is the output.
func DefaultBindings() []Binding {
	return []Binding{
		{Slot: 0, Role: RoleInput},
		{Slot: 1, Role: RoleInput},
		{Slot: 2, Role: RoleOutput},
	}
}

// validateBindings checks that slots are dense, start at 0, appear in order
// and carry a known role.
func validateBindings(bindings []Binding) error {
	if len(bindings) == 0 {
		return fmt.Errorf("%w: no bindings", ErrInvalidBindings)
	}
	for i, b := range bindings {
		if b.Slot != i {
			return fmt.Errorf("%w: binding %d has slot %d, want %d", ErrInvalidBindings, i, b.Slot, i)
		}
		if b.Role < RoleInput || b.Role > RoleInOut {
			return fmt.Errorf("%w: slot %d has unknown role %v", ErrInvalidBindings, b.Slot, b.Role)
		}
	}
	return nil
}
