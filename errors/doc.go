// Package errors provides structured error types for the compute runtime.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). Native device statuses are carried as a Code, which is itself an
// error, so a caller can match either the category or the exact status:
//
//	_, err := queue.WriteBuffer(buf, false, 0, data, nil)
//	if errors.Is(err, errors.InvalidValue) {
//		// rejected at submission
//	}
//
// Three failure classes matter to callers:
//
//   - Submission errors are returned synchronously by enqueue calls. Nothing
//     was queued and no event exists.
//   - Aborted errors describe a command that failed on the device. They are
//     only observable through the command's event.
//   - Leaked errors describe resources reclaimed by the garbage collector
//     without an explicit release. They are logged, never returned.
//
// Use the Builder for anything the constructors do not cover:
//
//	err := errors.New(errors.PhaseEnqueue, errors.KindInvalidValue).
//		Op("execute").
//		Code(errors.InvalidWorkDimension).
//		Detail("got %d dimensions", len(global)).
//		Build()
package errors
