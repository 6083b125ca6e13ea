// Package process supervises transcoder subprocesses.
//
// A Process wraps one subprocess with three I/O concerns wired in:
// binary stdout chunks stream to a handler (the H264 fan-out path),
// stderr lines pass through a log parser into a module logger, and an
// optional stdin pipe feeds MJPEG frames to the child.
//
// Teardown is immediate: Stop kills the process group with SIGKILL.
// The transcoders hold no state worth flushing and a wedged FFmpeg
// must never outlive its last viewer. An exit callback distinguishes
// requested stops from unexpected deaths so the session layer can
// respawn on the next viewer.
//
// Run is the synchronous variant for batch jobs such as timelapse
// assembly.
package process
