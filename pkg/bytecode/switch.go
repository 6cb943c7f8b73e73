package bytecode

import (
	"fmt"
	"strings"
)

// SwitchTable is the decoded payload of tableswitch and lookupswitch.
// Values and Targets are parallel; targets are absolute offsets.
type SwitchTable struct {
	Values  []int32
	Targets []int
	Default int
}

// Size returns the number of non-default cases.
func (s *SwitchTable) Size() int {
	return len(s.Values)
}

// AllTargets returns every case target followed by the default target.
func (s *SwitchTable) AllTargets() []int {
	out := make([]int, 0, len(s.Targets)+1)
	out = append(out, s.Targets...)
	return append(out, s.Default)
}

func (s *SwitchTable) String() string {
	var sb strings.Builder
	sb.WriteString("{")
	for i, v := range s.Values {
		fmt.Fprintf(&sb, "%d: %04X, ", v, s.Targets[i])
	}
	fmt.Fprintf(&sb, "default: %04X}", s.Default)
	return sb.String()
}
