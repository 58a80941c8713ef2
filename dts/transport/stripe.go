// Package transport implements the parallel-socket bulk transfer
// subsystem of spec.md §4.3: splitting a file into N stripes, moving
// each over its own connection in parallel, and reassembling them on
// the receiving side with a per-stripe checksum.
package transport

// SingleThreadThreshold is the file-size floor below which a transfer
// degrades to single-threaded on the base port (spec.md §4.3).
const SingleThreadThreshold = 65536

// Stripe is one contiguous byte range of a file.
type Stripe struct {
	Index  int
	Offset int64
	Length int64
	Port   int
}

// StripeRanges splits a file of size F into n contiguous, non-
// overlapping stripes: stripe i has offset floor(i*F/n) and length
// floor((i+1)*F/n) - floor(i*F/n) (spec.md §4.3, §8 invariant 4).
// Files below SingleThreadThreshold always get a single stripe.
func StripeRanges(size int64, n int, basePort int) []Stripe {
	if n < 1 {
		n = 1
	}
	if size < SingleThreadThreshold {
		n = 1
	}
	stripes := make([]Stripe, n)
	var prev int64
	for i := 0; i < n; i++ {
		end := (int64(i+1) * size) / int64(n)
		stripes[i] = Stripe{
			Index:  i,
			Offset: prev,
			Length: end - prev,
			Port:   basePort + i,
		}
		prev = end
	}
	return stripes
}
