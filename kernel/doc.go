// Package kernel implements the Quark per-process capability table.
//
// This package contains:
//   - Handle: an owned token binding a Dispatcher, rights, and an owner
//   - HandleTable: the per-process table of live handles
//   - HandleCursor: a removal-safe iterator over a table
//   - Obfuscated 32-bit handle-value encoding
//   - Process identity and basic policy enforcement
package kernel
