// Package scenario holds the demo drivers. Each scenario builds a small fixed
// setup, runs it for a fixed number of steps and narrates what happens.
//
// Scenarios degrade gracefully: when the language model cannot be reached
// they print a setup hint once and return without error. In offline mode
// every agent decides with its deterministic policy instead.
package scenario
