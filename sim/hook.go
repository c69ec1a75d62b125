package sim

// A HookPos names a site where hooks fire. Flag is the debug letter that
// makes a DebugLogger print the site.
type HookPos struct {
	Name string
	Flag byte
}

// HookCtx describes one firing of a hook site.
type HookCtx struct {
	Domain Hookable
	Now    Tick
	Pos    *HookPos
	Item   interface{}
	Detail interface{}
}

// A Hookable accepts hooks and fires them at its hook sites.
type Hookable interface {
	AcceptHook(hook Hook)
	NumHooks() int
}

// A Hook observes the sites of the components it is attached to.
type Hook interface {
	Func(ctx HookCtx)
}

// HookableBase keeps the hooks of a component.
type HookableBase struct {
	hookList []Hook
}

// NumHooks returns the number of hooks attached.
func (h *HookableBase) NumHooks() int {
	return len(h.hookList)
}

// AcceptHook attaches a hook. Attaching the same hook twice panics.
func (h *HookableBase) AcceptHook(hook Hook) {
	for _, registered := range h.hookList {
		if registered == hook {
			panic("duplicated hook")
		}
	}

	h.hookList = append(h.hookList, hook)
}

// InvokeHook calls the hooks in the order they were attached.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.hookList {
		hook.Func(ctx)
	}
}
