// Package hostname determines the name of the local host.
package hostname

import "os"

// Fallback is used when no hostname can be determined.
const Fallback = "localhost"

// Resolve returns $HOSTNAME, the kernel hostname, or Fallback, in that order.
// Callers resolve it once at startup and pass the value along.
func Resolve() string {
	if h := os.Getenv("HOSTNAME"); h != "" {
		return h
	}
	h, err := os.Hostname()
	if err != nil || h == "" {
		return Fallback
	}
	return h
}
