package realtime

import "errors"

var (
	ErrHubClosed    = errors.New("realtime hub is closed")
	ErrBridgeClosed = errors.New("realtime bridge is not running")
)
