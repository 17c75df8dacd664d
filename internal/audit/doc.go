// Package audit delivers auth flow outcome events to a pluggable sink
// without blocking the flow that produced them.
//
// What this package must NOT do:
//   - call back into the engine
//   - record secrets, codes or password material in events
package audit
