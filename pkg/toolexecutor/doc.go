// Package toolexecutor holds the local functions a hosted agent may call while
// a run is in requires_action, and runs them with validated arguments.
//
// The agent client hands each function call to Execute and submits the
// encoded result back to the run, so a failing tool never fails the send.
package toolexecutor
