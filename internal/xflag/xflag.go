//go:build go1.21

// Package xflag adds small conveniences on top of the standard flag package.
package xflag

import "flag"

// Func is like [flag.Func], but avoids the need for an init-time variable by
// allocating its own storage for the parsed value and returning a pointer to
// it directly.
func Func[T any](name, usage string, fn func(string) (T, error)) *T {
	v := new(T)
	flag.Func(name, usage, func(s string) (err error) {
		*v, err = fn(s)
		return err
	})
	return v
}
