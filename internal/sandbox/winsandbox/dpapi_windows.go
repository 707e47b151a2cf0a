//go:build windows

package winsandbox

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Machine scope so both elevated and non-elevated processes on the same
// machine can decrypt secrets persisted for elevation flows.
const cryptProtectLocalMachine = 0x4

// ProtectSecret encrypts data with DPAPI at machine scope.
func ProtectSecret(data []byte) ([]byte, error) {
	in := windows.DataBlob{Size: uint32(len(data))}
	if len(data) > 0 {
		in.Data = &data[0]
	}
	var out windows.DataBlob
	err := windows.CryptProtectData(&in, nil, nil, 0, nil,
		windows.CRYPTPROTECT_UI_FORBIDDEN|cryptProtectLocalMachine, &out)
	if err != nil {
		return nil, fmt.Errorf("winsandbox: CryptProtectData: %w", err)
	}
	defer windows.LocalFree(windows.Handle(unsafe.Pointer(out.Data)))
	return append([]byte(nil), unsafe.Slice(out.Data, out.Size)...), nil
}

// UnprotectSecret decrypts data previously produced by ProtectSecret.
func UnprotectSecret(data []byte) ([]byte, error) {
	in := windows.DataBlob{Size: uint32(len(data))}
	if len(data) > 0 {
		in.Data = &data[0]
	}
	var out windows.DataBlob
	err := windows.CryptUnprotectData(&in, nil, nil, 0, nil,
		windows.CRYPTPROTECT_UI_FORBIDDEN, &out)
	if err != nil {
		return nil, fmt.Errorf("winsandbox: CryptUnprotectData: %w", err)
	}
	defer windows.LocalFree(windows.Handle(unsafe.Pointer(out.Data)))
	return append([]byte(nil), unsafe.Slice(out.Data, out.Size)...), nil
}
