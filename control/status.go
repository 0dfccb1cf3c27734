package control

import (
	"time"
)

type Status string

const (
	Idle    Status = "idle"
	Loading Status = "loading"
	Success Status = "success"
	Error   Status = "error"
)

// State is the operation state of one bound control. Each control owns
// exactly one State through its Coordinator; there is no ambient registry
// mapping controls to state.
type State struct {
	Status     Status
	LastError  string
	LastUpdate time.Time
}
