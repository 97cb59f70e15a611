// Package errs defines the sentinel error kinds shared across the scheduler,
// registry and invoker so callers can errors.Is/As against a stable taxonomy
// instead of matching on message strings.
package errs

import "errors"

var (
	ErrStoreUnavailable   = errors.New("task store unavailable")
	ErrBrokerUnavailable  = errors.New("broker unavailable")
	ErrPluginNotAvailable = errors.New("plugin not available")
	ErrParameterInvalid   = errors.New("plugin parameters invalid")
	ErrPluginRuntimeError = errors.New("plugin runtime error")
	ErrManifestInvalid    = errors.New("plugin manifest invalid")
	ErrCdcDisconnected    = errors.New("cdc stream disconnected")
	ErrConsumerError      = errors.New("consumer error")
	ErrTaskNotFound       = errors.New("task not found")
)
