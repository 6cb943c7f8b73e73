package bytecode

import (
	"fmt"

	"github.com/chazu/typeflow/pkg/jtype"
)

// LocalVariable is one entry of a method's local variable debug table.
type LocalVariable struct {
	Start     int
	Length    int
	Name      string
	Type      *jtype.Type
	Signature string // generic signature, may be empty
	Slot      int
}

// Covers reports whether the entry is live at pc in slot.
func (v *LocalVariable) Covers(pc, slot int) bool {
	return slot == v.Slot && pc >= v.Start && pc < v.Start+v.Length
}

func (v *LocalVariable) String() string {
	return fmt.Sprintf("%s %s @%d [%04X..%04X)", v.Type.Human(), v.Name, v.Slot, v.Start, v.Start+v.Length)
}

// LocalVariableList is a local variable debug table. A nil list is a method
// compiled without debug information.
type LocalVariableList []LocalVariable

// Lookup returns the entry covering slot at pc, or nil.
func (l LocalVariableList) Lookup(pc, slot int) *LocalVariable {
	for i := range l {
		if l[i].Covers(pc, slot) {
			return &l[i]
		}
	}
	return nil
}

// ForSlot returns every entry describing slot, in table order.
func (l LocalVariableList) ForSlot(slot int) []LocalVariable {
	var out []LocalVariable
	for _, v := range l {
		if v.Slot == slot {
			out = append(out, v)
		}
	}
	return out
}
