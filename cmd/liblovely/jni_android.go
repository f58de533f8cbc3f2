package main

import "C"

import (
	"unsafe"
)

const jniVersion16 = 0x00010006

// JNI_OnLoad lets System.loadLibrary accept the library. Bootstrap has
// already run by the time the VM calls it.
//
//export JNI_OnLoad
func JNI_OnLoad(vm, reserved unsafe.Pointer) C.int {
	_, _ = vm, reserved
	return jniVersion16
}
