package mergedepot

import "github.com/kolkov/datadeps/internal/deps/instr"

// setFloor narrows the id range so exhaustion can be tested.
func (d *Depot) setFloor(floor instr.ID) {
	d.mu.Lock()
	d.floor = floor
	d.mu.Unlock()
}
