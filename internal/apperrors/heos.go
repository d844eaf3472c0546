package apperrors

import (
	"errors"
	"fmt"

	"github.com/strefethen/heos-hub-go/internal/heos"
)

// FromHEOS translates a HEOS client error into an AppError with an
// appropriate HTTP status. Errors that are already AppErrors pass through.
func FromHEOS(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, heos.ErrCommandTimeout):
		return NewAppError(ErrorCodeHeosTimeout, "HEOS device did not answer in time", 504, nil, nil)
	case errors.Is(err, heos.ErrBusy):
		return NewAppError(ErrorCodeHeosBusy, "An identical command is already in flight", 409, nil, &Remediation{
			Action: "retry",
		})
	case errors.Is(err, heos.ErrShutdown):
		return NewAppError(ErrorCodeHeosUnreachable, "Hub is shutting down", 503, nil, nil)
	case errors.Is(err, heos.ErrDisconnected):
		return NewAppError(ErrorCodeHeosUnreachable, "HEOS device is not connected", 503, nil, &Remediation{
			Action:     "wait_reconnect",
			Endpoint:   "GET /v1/system/status",
			UserAction: "Check that the HEOS device is powered on and reachable",
		})
	}

	var groupErr *heos.InvalidGroupError
	if errors.As(err, &groupErr) {
		return NewAppError(ErrorCodeGroupInvalid, groupErr.Error(), 400, nil, nil)
	}

	var authErr *heos.AuthError
	if errors.As(err, &authErr) {
		return NewAppError(ErrorCodeAccountAuthFailed, authErr.Error(), 502, map[string]any{
			"eid": authErr.EID,
		}, nil)
	}

	var cmdErr *heos.CommandError
	if errors.As(err, &cmdErr) {
		details := map[string]any{
			"command": cmdErr.Command,
			"eid":     cmdErr.EID,
		}
		if cmdErr.Text != "" {
			details["text"] = cmdErr.Text
		}
		return NewAppError(ErrorCodeHeosRejected, fmt.Sprintf("HEOS device rejected the command: %s", cmdErr.Error()), 502, details, nil)
	}

	var connErr *heos.ConnectError
	if errors.As(err, &connErr) {
		return NewAppError(ErrorCodeHeosUnreachable, connErr.Error(), 503, map[string]any{
			"endpoint": connErr.Endpoint,
		}, nil)
	}

	var refreshErr *heos.RefreshError
	if errors.As(err, &refreshErr) {
		return NewAppError(ErrorCodeHeosRefreshFailed, refreshErr.Error(), 502, map[string]any{
			"stage": refreshErr.Stage,
		}, nil)
	}

	var protoErr *heos.ProtocolError
	if errors.As(err, &protoErr) {
		return NewAppError(ErrorCodeHeosProtocol, protoErr.Error(), 502, nil, nil)
	}

	return NewInternalError("Internal server error")
}
