// package algorithms provides generified map functions.
package algorithms

// Map applies the function f to each element of the slice and returns a new slice containing the results.
// The result is never nil.
func Map[T, R any](s []T, f func(T) R) []R {
	r := make([]R, 0, len(s))
	for _, v := range s {
		r = append(r, f(v))
	}
	return r
}
