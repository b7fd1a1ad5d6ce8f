// Package randsrc provides the generator's seedable draw source: d6/d9/d12/
// d20/d42/d100, a generic dx(n), a weighted pick, and deterministic
// identifier minting. A second implementation reads bytes from a fixed file
// so AFL-style coverage-guided front ends can drive generation by supplying
// the file (see FileSource).
package randsrc

// Source is the draw interface the grammar consumes. Implementations need
// not be safe for concurrent use; the generator runs single-threaded per
// scope.
type Source interface {
	D6() int
	D9() int
	D12() int
	D20() int
	D42() int
	D100() int
	// Dx returns a value in [1, n], inclusive, for n >= 1.
	Dx(n int) int
	// Pick returns the index of a weighted choice among weights, using a
	// single draw; weights must sum to more than zero.
	Pick(weights []int) int
	// Ident returns an identifier with the given prefix, unique within
	// this source.
	Ident(prefix string) string
}
