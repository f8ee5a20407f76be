package script

import lua "github.com/yuin/gopher-lua"

// CoroutineStatus mirrors coroutine.status's result vocabulary.
type CoroutineStatus string

const (
	StatusSuspended CoroutineStatus = "suspended"
	StatusRunning   CoroutineStatus = "running"
	StatusNormal    CoroutineStatus = "normal"
	StatusDead      CoroutineStatus = "dead"
	StatusError     CoroutineStatus = "error"
)

// Coroutine wraps a Lua thread created from a function, giving Go binding
// code the same status/resume/yield vocabulary the spec describes.
type Coroutine struct {
	owner  *Context
	thread *lua.LState
	fn     *lua.LFunction
}

// NewCoroutine creates a coroutine that will run fn when first resumed.
func (c *Context) NewCoroutine(fn *lua.LFunction) *Coroutine {
	thread, _ := c.vm.NewThread()
	return &Coroutine{owner: c, thread: thread, fn: fn}
}

// Status reports the coroutine's current state.
func (co *Coroutine) Status() CoroutineStatus {
	return CoroutineStatus(co.owner.vm.Status(co.thread))
}

// Resume pushes args onto the coroutine's stack and runs it until it yields
// or completes. results holds the yielded or returned values directly (the
// caller packs them into a table itself when more than one is expected, per
// the spec's "one value directly, multiple packed into a table" contract).
func (co *Coroutine) Resume(args ...lua.LValue) (results []lua.LValue, err error) {
	_, results, err = co.owner.vm.Resume(co.thread, co.fn, args...)
	return results, err
}

// IsDead reports whether the coroutine has finished (returned or errored)
// and can no longer be resumed.
func (co *Coroutine) IsDead() bool {
	return co.Status() == StatusDead
}
