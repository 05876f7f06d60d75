package state

import (
	"fmt"
	"strings"
)

// Ancestor identifies one enclosing loop iteration.
type Ancestor struct {
	Loop      string `json:"loop"`
	Iteration int    `json:"iteration"`
}

// Ancestors is the nesting path from the top-level chain down to the
// current loop iteration. It is a value: Push never modifies the receiver.
type Ancestors []Ancestor

// Push returns a new path extended with the given loop iteration.
func (a Ancestors) Push(loop string, iteration int) Ancestors {
	out := make(Ancestors, len(a), len(a)+1)
	copy(out, a)
	return append(out, Ancestor{Loop: loop, Iteration: iteration})
}

// Depth returns the number of enclosing loop iterations.
func (a Ancestors) Depth() int {
	return len(a)
}

func (a Ancestors) String() string {
	if len(a) == 0 {
		return "/"
	}
	var sb strings.Builder
	for _, anc := range a {
		fmt.Fprintf(&sb, "/%s[%d]", anc.Loop, anc.Iteration)
	}
	return sb.String()
}
