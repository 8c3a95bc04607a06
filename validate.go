package cite

import "fmt"

// ValidateMessage checks the invariants of a finalized history message:
// a known role, no streaming flag, unique citation ids and known tool call
// statuses. User messages carry no citations, sources or tool calls.
func ValidateMessage(m Message) error {
	switch m.Role {
	case RoleUser:
		if len(m.Citations) > 0 || len(m.Sources) > 0 || len(m.ToolCalls) > 0 {
			return fmt.Errorf("user message %s carries answer metadata: %w", m.ID, ErrValidation)
		}
	case RoleAssistant:
	default:
		return fmt.Errorf("unknown role %q in message %s: %w", m.Role, m.ID, ErrValidation)
	}
	if m.Streaming {
		return fmt.Errorf("message %s is still streaming: %w", m.ID, ErrValidation)
	}
	seen := make(map[int]bool, len(m.Citations))
	for _, c := range m.Citations {
		if seen[c.ID] {
			return fmt.Errorf("duplicate citation id %d in message %s: %w", c.ID, m.ID, ErrValidation)
		}
		seen[c.ID] = true
	}
	for _, tc := range m.ToolCalls {
		if !tc.Status.Valid() {
			return fmt.Errorf("tool call %s has status %q: %w", tc.ID, tc.Status, ErrValidation)
		}
	}
	return nil
}
