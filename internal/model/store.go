package model

import "errors"

// ErrNotFound is returned by store backends' single-row lookups that find
// nothing. It is a plain sentinel rather than an Error/ErrCode because
// "not found" means different things to different callers (UnknownTool,
// ElicitationNotFound, a nil permission meaning "no standing grant") — the
// caller maps it to the right ErrCode.
var ErrNotFound = errors.New("not found")
