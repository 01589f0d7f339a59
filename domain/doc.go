// Package domain provides canonical type definitions for pipeline runs,
// stage executions, and the lifecycle events emitted while a run progresses.
//
// The types here are deliberately free of behavior beyond simple accessors:
// they are the shared vocabulary between the engine, the stages, and any
// consumer of run events. All orchestration logic lives in the engine
// package.
package domain
