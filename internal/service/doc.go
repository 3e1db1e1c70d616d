// Package service implements supervision of the development processes.
//
// Overview
// The Coordinator owns a fixed set of Commands (the backend and the
// frontend) and runs one supervision task per Command in an errgroup. Every
// task starts its Process, announces the PID and then forwards the combined
// stdout/stderr of the child to the shared Console, one labeled line at a
// time.
//
// Process is a thin, opinionated wrapper around os/exec:
//   - runs the command through the platform shell
//   - hands a single pipe to both stdout and stderr
//   - puts the child into its own process group (unix)
//   - exposes the output as a one-shot iterator of lines
//   - stops the group with SIGTERM, optionally escalating to SIGKILL
//
// Data flow:
//
//	Coordinator           supervise{name}          Process{cmd}
//	    |                      |                        |
//	Run -> g.Go -------------->| Start() -------------->| os/exec.Start + Wait() in goroutine
//	    |                      |<-- started (PID) ------|
//	    |   start gate opens   |                        |
//	    |                      |<------ Lines() --------| pipe reader goroutine
//	    |<----- [name] line ---|                        |
//	ctx.Done -> notice         |                        |
//	    | cancel tasks ------->| Stop() --------------->| SIGTERM, wait for exit
//	    |<-- context.Canceled -|                        |
//
// Invariants:
//   - Exactly one Process per supervision task; the task returns only after
//     the exit of its Process was observed.
//   - Both PID announcements are printed before any output line.
//   - Lines of one Process keep their order, lines of different
//     processes interleave freely.
//   - No output line of a Process is printed once its task is cancelled.
//   - A child exiting (with any exit code) never stops its sibling.
package service
