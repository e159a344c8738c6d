// Package backend defines the boundary between the host runtime and a native
// compute driver.
//
// The host never touches device state directly. It holds opaque
// resource.Handle values and drives the device through the Backend interface,
// checking the errors.Code every call returns. Completion is signalled through
// EventCallback, which the driver invokes on goroutines it owns.
//
// Package sim provides an in-process implementation.
package backend
