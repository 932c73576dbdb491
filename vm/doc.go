// Package vm implements the register machine state that hints operate on.
//
// This package contains:
//   - Field elements and segmented addresses
//   - Write-once segmented memory
//   - Segment allocation and structured argument writes
//   - The VirtualMachine registers, trace and instruction hook
//   - The signature builtin runner
package vm
