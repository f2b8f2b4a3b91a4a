package engine

import "github.com/kolkov/datadeps/internal/deps/instr"

// InvariantError reports a broken engine invariant.
type InvariantError = instr.InvariantError

// Recover converts an invariant violation panic into an error stored in
// *errp. Other panics are re-raised.
//
// Usage:
//
//	func replay(e *engine.Engine) (err error) {
//	    defer engine.Recover(&err)
//	    e.Step(...)
//	    return nil
//	}
func Recover(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if ie, ok := r.(*InvariantError); ok {
		*errp = ie
		return
	}
	panic(r)
}
