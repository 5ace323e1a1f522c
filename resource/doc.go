// Package resource bounds the background work of a model: how many snapshot
// writes run at once, how many encoded snapshot bytes may wait in memory, and
// how fast they are written out.
package resource
