package tui

import (
	"github.com/Veraticus/susa-must-flow/internal/download"
	"github.com/Veraticus/susa-must-flow/internal/push"
)

// Change notifications.
type stateChangedMsg struct{}

type notificationsChangedMsg struct{}

type connectionMsg struct {
	state push.State
}

// Async operation results. Coordinator failures already reach the
// notification stack, so only local failures carry an error here.
type operationMsg struct {
	err error
	op  string
	ok  bool
}

type downloadMsg struct {
	err     error
	results []download.Result
}

type exportMsg struct {
	err  error
	path string
}
