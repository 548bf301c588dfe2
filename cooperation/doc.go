// Package cooperation holds the primitives agents use to work together: a
// SharedResource with a single owner at a time, and a Team that delegates
// tasks, tracks them to completion and votes on proposals.
package cooperation
