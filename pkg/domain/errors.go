package domain

import "errors"

// ErrCallNotFound is returned when a call ID cannot be found in the store.
var ErrCallNotFound = errors.New("call not found")

// ErrCallerNotFound is returned when no caller record exists for an ANI.
var ErrCallerNotFound = errors.New("caller not found")

// ErrUnknownTool is returned for tool names outside the closed tool set.
var ErrUnknownTool = errors.New("unknown tool")

// ErrToolNotAllowed is returned when a tool does not belong to the current step.
var ErrToolNotAllowed = errors.New("tool not allowed at current step")

// ErrCallTerminated is returned for any tool invocation after wrap_up.
var ErrCallTerminated = errors.New("call already reached wrap_up")

// ErrIllegalTransition signals a move outside the step graph. It indicates a bug.
var ErrIllegalTransition = errors.New("illegal step transition")

// ErrConsentNotGranted is returned when no granted consent row exists for a call.
var ErrConsentNotGranted = errors.New("consent not granted")

// ErrConsentViolation is returned when a gated side effect is attempted without consent.
var ErrConsentViolation = errors.New("consent violation: send refused")

// ErrVersionConflict is returned by caller stores when a concurrent writer won.
var ErrVersionConflict = errors.New("caller record version conflict")

// ErrNoActiveWait is returned when a webhook arrives for a call that is not waiting.
var ErrNoActiveWait = errors.New("no active sms wait for call")

// ErrInvalidAnswer is returned when tool arguments cannot be decoded.
var ErrInvalidAnswer = errors.New("invalid tool arguments")

// ErrCallExists is returned when a call ID is started twice.
var ErrCallExists = errors.New("call already started")
