package render

import "errors"

var (
	ErrMalformedTemplate = errors.New("malformed layout template")
	ErrUnsealed          = errors.New("verification record is not sealed")
	ErrEngineCrashed     = errors.New("render engine crashed")
	ErrEngineTimeout     = errors.New("render engine timed out")
	ErrPoolExhausted     = errors.New("no render engine available")
	ErrPoolClosed        = errors.New("render pool closed")
	ErrNotDispatched     = errors.New("render not dispatched")
	ErrNoStamp           = errors.New("document carries no verification stamp")
)
