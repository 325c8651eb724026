// Package vm implements the VitteLight virtual machine.
//
// This package contains:
//   - Tagged value representation with interned strings
//   - Open-addressed tables for globals and natives
//   - VLBC image loader and verifier
//   - Bytecode interpreter with tracing hooks and native dispatch
//   - Optional mark-sweep collector for heap strings
//   - Disassembler
package vm
