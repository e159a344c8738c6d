// Package engine runs WebAssembly compute kernels on wazero.
//
// A kernel module is an ordinary core WASM module. Every exported function is
// a kernel with the signature
//
//	(func (param $gid i32) (param $arg0 ...) ...)
//
// The first parameter is the linear global id of the work item. Memory
// arguments arrive as i32 byte offsets into linear memory, scalars by value.
//
// # Architecture
//
//	WazeroEngine  - owns the wazero runtime
//	KernelModule  - a compiled module, lists and runs its kernels
//	WazeroMemory  - bounds-checked access to an instance's linear memory
//
// # Launch Flow
//
//  1. WazeroEngine.LoadModule() compiles the binary once
//  2. KernelModule.Run() instantiates an anonymous instance
//  3. memory arguments are staged at MemoryAlign-aligned offsets
//  4. the kernel export is called once per work item
//  5. staged buffers are copied back into the caller's slices
//
// A trap in any work item aborts the launch and leaves the caller's buffers
// untouched.
//
// # Thread Safety
//
// WazeroEngine and KernelModule are safe for concurrent use. Concurrent
// launches never share an instance.
package engine
