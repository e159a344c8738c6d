// Package wasmkernels holds small prebuilt WASM kernel modules used by the
// clrun demo and tests.
package wasmkernels

// Arith exports three kernels over an i32 buffer:
//
//	double(gid i32, buf i32)        buf[gid] *= 2
//	scale(gid i32, buf i32, k i32)  buf[gid] *= k
//	fail(gid i32, buf i32)          unreachable
//
// Equivalent text format:
//
//	(module
//	  (memory (export "memory") 1)
//	  (func (export "double") (param i32 i32)
//	    (i32.store (i32.add (local.get 1) (i32.shl (local.get 0) (i32.const 2)))
//	      (i32.shl (i32.load (i32.add (local.get 1) (i32.shl (local.get 0) (i32.const 2))))
//	        (i32.const 1))))
//	  (func (export "scale") (param i32 i32 i32)
//	    (i32.store (i32.add (local.get 1) (i32.shl (local.get 0) (i32.const 2)))
//	      (i32.mul (i32.load (i32.add (local.get 1) (i32.shl (local.get 0) (i32.const 2))))
//	        (local.get 2))))
//	  (func (export "fail") (param i32 i32) unreachable))
var Arith = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// type section: (i32 i32) -> (), (i32 i32 i32) -> ()
	0x01, 0x0c, 0x02,
	0x60, 0x02, 0x7f, 0x7f, 0x00,
	0x60, 0x03, 0x7f, 0x7f, 0x7f, 0x00,
	// function section
	0x03, 0x04, 0x03, 0x00, 0x01, 0x00,
	// memory section: min 1 page
	0x05, 0x03, 0x01, 0x00, 0x01,
	// export section
	0x07, 0x22, 0x04,
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	0x06, 'd', 'o', 'u', 'b', 'l', 'e', 0x00, 0x00,
	0x05, 's', 'c', 'a', 'l', 'e', 0x00, 0x01,
	0x04, 'f', 'a', 'i', 'l', 0x00, 0x02,
	// code section
	0x0a, 0x3d, 0x03,
	// double
	0x1b, 0x00,
	0x20, 0x01, 0x20, 0x00, 0x41, 0x02, 0x74, 0x6a,
	0x20, 0x01, 0x20, 0x00, 0x41, 0x02, 0x74, 0x6a, 0x28, 0x02, 0x00,
	0x41, 0x01, 0x74,
	0x36, 0x02, 0x00,
	0x0b,
	// scale
	0x1b, 0x00,
	0x20, 0x01, 0x20, 0x00, 0x41, 0x02, 0x74, 0x6a,
	0x20, 0x01, 0x20, 0x00, 0x41, 0x02, 0x74, 0x6a, 0x28, 0x02, 0x00,
	0x20, 0x02, 0x6c,
	0x36, 0x02, 0x00,
	0x0b,
	// fail
	0x03, 0x00, 0x00, 0x0b,
}
