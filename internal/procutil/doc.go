// Package procutil provides process utilities for the daemon: resolving the
// owning process name of an audio session, and hiding the daemon's own
// console window when launched in background mode.
package procutil
