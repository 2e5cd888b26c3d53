// Package bridge runs the external compute engine behind a small positional
// text protocol. A request becomes the argument list
//
//	<flattened-board> <turn> <difficulty> <exploration> [extra...]
//
// and the first line of the process's standard output, "<primary>" or
// "<primary>|<secondary>", becomes the Result. Every call starts a fresh
// process; nothing is pooled or shared between calls.
package bridge
