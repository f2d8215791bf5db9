// Package primitives provides the data structures of the state machine engine.
//
// Two families of types live here:
//
//   - State definitions (StateDef, RegionDecl, HandlerDecl, GuardDecl,
//     HookDecl, Protocol): the declarative input handed to the compiler.
//   - The compiled Model: an arena of Nodes and Regions addressed by stable
//     indices, with Actions and Transitions resolved. A Model is immutable
//     once built and may be shared by any number of machines.
//
// Core invariants:
//   - Parents are referenced by index, never by pointer
//   - Mutable "active child" slots belong to a machine, not to the Model
//   - Errors carry a stable Kind plus parameters for structured logging
package primitives
