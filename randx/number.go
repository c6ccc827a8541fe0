package randx

import "math/rand"

// JitterMillis picks a random delay in [0, maxMillis] inclusive, used to
// stagger the housekeeper's initial cycle across front-ends started at
// the same instant so their lease acquisitions don't collide in lockstep.
func JitterMillis(maxMillis int) int {
	if maxMillis <= 0 {
		return 0
	}
	return rand.Intn(maxMillis + 1)
}
