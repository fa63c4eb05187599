package chat

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Action types accepted on POST /api/chat and over the WebSocket
// transport.
const (
	ActionTypeJoin        = "join"
	ActionTypeFindPartner = "findPartner"
	ActionTypeSignal      = "signal"
	ActionTypeGetSignals  = "getSignals"
	ActionTypeChatMessage = "chatMessage"
	ActionTypeGetMessages = "getMessages"
	ActionTypeGetEvents   = "getEvents"
	ActionTypeDisconnect  = "disconnect"
	ActionTypeBatchUpdate = "batchUpdate"
	ActionTypeDebug       = "debug"
)

// ValidationError marks a malformed request that must be rejected at the
// boundary (HTTP 400) before any registry mutation happens.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

type signalData struct {
	Signal json.RawMessage `json:"signal"`
}

type chatMessageData struct {
	Message string `json:"message"`
}

// Dispatch validates the payload for the named action and applies it to
// the engine. It returns a JSON-able result, or a *ValidationError when
// the action type is unknown or the payload is malformed.
//
// The loosely-shaped `data` blob is narrowed here into per-action typed
// payloads so undefined-like values never reach stored outboxes.
func Dispatch(e *Engine, userID, actionType string, data json.RawMessage) (any, error) {
	switch actionType {
	case ActionTypeJoin:
		return e.Join(userID), nil

	case ActionTypeFindPartner:
		return e.FindPartner(userID), nil

	case ActionTypeSignal:
		var d signalData
		if len(data) > 0 {
			if err := json.Unmarshal(data, &d); err != nil {
				return nil, validationErrorf("invalid signal data")
			}
		}
		if len(d.Signal) == 0 || string(d.Signal) == "null" {
			return nil, validationErrorf("signal payload required")
		}
		return e.Signal(userID, d.Signal), nil

	case ActionTypeGetSignals:
		return e.Signals(userID), nil

	case ActionTypeChatMessage:
		var d chatMessageData
		if len(data) > 0 {
			if err := json.Unmarshal(data, &d); err != nil {
				return nil, validationErrorf("invalid chatMessage data")
			}
		}
		if strings.TrimSpace(d.Message) == "" {
			return nil, validationErrorf("message required")
		}
		return e.SendMessage(userID, d.Message), nil

	case ActionTypeGetMessages:
		return e.Messages(userID), nil

	case ActionTypeGetEvents:
		return e.Events(userID), nil

	case ActionTypeDisconnect:
		return e.Disconnect(userID), nil

	case ActionTypeBatchUpdate:
		return e.BatchUpdate(userID), nil

	case ActionTypeDebug:
		return e.Debug(userID), nil

	default:
		return nil, validationErrorf("Unknown action: %s", actionType)
	}
}
