// Package supervisor runs one task end to end: classify the text, resolve a
// handler, guard every path and operation parameter, serialize writers of the
// same target path, and invoke the handler, all under a single deadline.
//
// Every execution yields exactly one task.Outcome. Timeout comes only from
// the supervisor's own deadline; a collaborator's timeout, a handler error or
// a cancelled caller is a HandlerFailure. When the deadline wins, the caller
// gets Timeout immediately and the worker's context is cancelled; a worker
// blocked in non-interruptible I/O may still finish later, and its result is
// logged and dropped.
package supervisor
