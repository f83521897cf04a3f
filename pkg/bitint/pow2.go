/*
Package bitint provides the power-of-2 helpers used for buffer and frame
sizing on the audio path.

Everything here is allocation-free and constant-time, so the functions are
safe to call from real-time code.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the next power of 2 >= size; 1 for size <= 0.
//
// The size-1 is what keeps exact powers of 2 unchanged: bits.Len64(8) is 4,
// so without the subtraction 8 would double to 16, while bits.Len64(7) is 3
// and 1<<3 lands back on 8.
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len64(uint64(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of 2. A power of 2 has
// exactly one bit set, so n AND n-1 is zero precisely for those values.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}
