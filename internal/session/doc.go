// Package session keeps the state of progressive searches between tool calls.
//
// A session is created by the first phase of a search and extended by later
// ones. Each phase stores its own result list; a record appears in at most one
// phase, the first that reported it. Sessions expire after an idle timeout and
// every access restarts the timer.
//
// Reusing one search id from concurrent callers is last-write-wins: repeating a
// phase replaces its list.
package session
