package instr

import "fmt"

// InvariantError reports a broken engine invariant: an unregistered
// instruction, a collision between identity spaces, or events delivered out
// of the read-then-write order.
//
// Invariant violations are programming errors in the tracer feeding the
// engine. The engine panics with *InvariantError; boundaries that replay
// traces recover it and return it as an ordinary error.
//
// Example:
//
//	err := &InvariantError{
//	    Op:         "register-read",
//	    Thread:     3,
//	    IP:         0x401000,
//	    Message:    "read after a write of the same instruction",
//	    Suggestion: "Deliver all reads of an instruction before its writes",
//	}
//	fmt.Println(err) // register-read: thread 3 ip 0x401000: read after a write of the same instruction
type InvariantError struct {
	Op         string   // Engine operation that detected the violation
	Thread     ThreadID // Thread the event belonged to
	IP         ID       // Instruction id involved
	Message    string   // What went wrong
	Suggestion string   // Optional hint (empty if none)
}

// Error implements the error interface.
//
// Format: op: thread T ip X: message
//
// A non-empty Suggestion is appended on a new paragraph.
func (e *InvariantError) Error() string {
	result := fmt.Sprintf("%s: thread %d ip %s: %s", e.Op, e.Thread, e.IP, e.Message)
	if e.Suggestion != "" {
		result += fmt.Sprintf("\n\nSuggestion: %s", e.Suggestion)
	}
	return result
}

// Violation panics with an InvariantError.
func Violation(op string, tid ThreadID, ip ID, suggestion, format string, args ...any) {
	panic(&InvariantError{
		Op:         op,
		Thread:     tid,
		IP:         ip,
		Message:    fmt.Sprintf(format, args...),
		Suggestion: suggestion,
	})
}
