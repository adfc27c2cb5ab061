// Package reachability distributes network-reachability changes to every
// registered connection manager.
//
// A Broadcaster is the explicit registry of subscribers: Register returns a
// release func that must be called when the subscriber goes away. A Prober
// is one possible source of changes; it polls an HTTP endpoint and
// broadcasts whenever the observed reachability flips.
package reachability
