// Package intercept gates checkout progression on the agreement
// checkbox.
package intercept

// Controller states.
type State string

const (
    Idle     State = "idle"
    Blocking State = "blocking"
    Allowing State = "allowing"
)

// Decision behaviors.
const (
    BehaviorAllow = "allow"
    BehaviorBlock = "block"
)

// ReasonUnchecked is the block reason reported to the host.
const ReasonUnchecked = "Checkbox not checked"

// Error is a user-facing validation error attached to a block decision.
type Error struct {
    Message string `json:"message"`
    Target  string `json:"target,omitempty"`
}

// Input is the state snapshot a progression attempt is judged against.
type Input struct {
    // Visible is the visibility evaluator's verdict; an invisible
    // checkbox never blocks.
    Visible  bool
    Required bool
    Checked  bool
    // CanBlock is the host capability flag for this attempt.
    CanBlock bool
    // ErrorMessage is the configured block message.
    ErrorMessage string
}

// Decision is the outcome of one progression attempt. It is inert until
// finalized; finalization fires the controller's side effect (the
// error-surface update) exactly once.
type Decision struct {
    Behavior string  `json:"behavior"`
    Reason   string  `json:"reason,omitempty"`
    Errors   []Error `json:"errors,omitempty"`

    finalize func()
    done     bool
}

// Block reports whether the decision blocks progression.
func (d *Decision) Block() bool { return d.Behavior == BehaviorBlock }

// Finalize commits the decision: the controller transitions and the
// error surface updates. Repeat calls are no-ops.
func (d *Decision) Finalize() {
    if d.done || d.finalize == nil {
        d.done = true
        return
    }
    d.done = true
    d.finalize()
}

// Controller is the per-session progression gate. OnErrorVisible is
// invoked on finalization with the new error-surface visibility; it is
// how the owning session learns to show or clear the inline error.
type Controller struct {
    state          State
    OnErrorVisible func(visible bool)
}

func New(onErrorVisible func(bool)) *Controller {
    return &Controller{state: Idle, OnErrorVisible: onErrorVisible}
}

// State returns the last finalized state.
func (c *Controller) State() State { return c.state }

// Evaluate judges one progression attempt. Pure with respect to the
// controller: nothing changes until the returned decision is finalized.
func (c *Controller) Evaluate(in Input) *Decision {
    if !in.Visible {
        return c.allow()
    }
    if in.CanBlock && in.Required && !in.Checked {
        msg := in.ErrorMessage
        d := &Decision{
            Behavior: BehaviorBlock,
            Reason:   ReasonUnchecked,
            Errors:   []Error{{Message: msg}},
        }
        d.finalize = func() {
            c.state = Blocking
            if c.OnErrorVisible != nil {
                c.OnErrorVisible(true)
            }
        }
        return d
    }
    return c.allow()
}

func (c *Controller) allow() *Decision {
    d := &Decision{Behavior: BehaviorAllow}
    d.finalize = func() {
        c.state = Allowing
        if c.OnErrorVisible != nil {
            c.OnErrorVisible(false)
        }
    }
    return d
}
