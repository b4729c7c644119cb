package processor

import (
	"fmt"
	"plugin"
	"strings"
	"sync"

	"github.com/ncubeanalytics/ingest/internal/apperror"
)

// Handle is one loaded plug-in object: its resolved Processor symbol, the
// optional HeadProcessor assertion, and the mutex the host acquires
// around every call into it. A plug-in that requires single-threaded
// access (a GIL, an unsynchronized internal cache) gets that guarantee
// for free; the plug-in author does nothing extra.
type Handle struct {
	mu   sync.Mutex
	proc Processor
	head HeadProcessor // nil if the plug-in doesn't implement it

	callablePath    string
	processBlocking bool
	headBlocking    bool
	pool            *blockingPool
}

// loadHandle opens the .so at path and resolves symbol as a Processor.
func loadHandle(callablePath string, processBlocking, headBlocking bool, pool *blockingPool) (*Handle, error) {
	path, symbol, err := splitCallablePath(callablePath)
	if err != nil {
		return nil, apperror.ErrConfigInvalid.WithDetails("callable_path", callablePath).WithDetails("cause", err.Error())
	}

	p, err := plugin.Open(path)
	if err != nil {
		return nil, apperror.ErrConfigInvalid.
			WithDetails("callable_path", callablePath).
			WithDetails("cause", fmt.Sprintf("opening plug-in: %v", err))
	}

	sym, err := p.Lookup(symbol)
	if err != nil {
		return nil, apperror.ErrConfigInvalid.
			WithDetails("callable_path", callablePath).
			WithDetails("cause", fmt.Sprintf("looking up symbol %q: %v", symbol, err))
	}

	proc, ok := sym.(Processor)
	if !ok {
		return nil, apperror.ErrConfigInvalid.
			WithDetails("callable_path", callablePath).
			WithDetails("cause", fmt.Sprintf("symbol %q does not implement processor.Processor", symbol))
	}

	head, _ := sym.(HeadProcessor)

	return &Handle{
		proc:            proc,
		head:            head,
		callablePath:    callablePath,
		processBlocking: processBlocking,
		headBlocking:    headBlocking,
		pool:            pool,
	}, nil
}

// CallablePath returns the "<path>:<symbol>" this handle was loaded from,
// used to label processor-error metrics.
func (h *Handle) CallablePath() string {
	return h.callablePath
}

// splitCallablePath splits "<module-like>:<symbol>" on its first colon.
func splitCallablePath(callablePath string) (path, symbol string, err error) {
	path, symbol, ok := strings.Cut(callablePath, ":")
	if !ok || path == "" || symbol == "" {
		return "", "", fmt.Errorf("callable path %q must be of the form <path>:<symbol>", callablePath)
	}
	return path, symbol, nil
}

// ImplementsHead reports whether this handle's plug-in implements
// HeadProcessor. This is how implements_head is derived rather than
// hand-configured.
func (h *Handle) ImplementsHead() bool {
	return h.head != nil
}

// ProcessHead calls the plug-in's head entry point, serialized behind
// the handle's mutex and dispatched to the blocking pool if configured.
func (h *Handle) ProcessHead(url, method string, headers HeaderView) (*Response, error) {
	if h.head == nil {
		return nil, nil
	}

	var resp *Response
	var err error
	call := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		resp, err = h.head.ProcessHead(url, method, headers)
	}

	if h.headBlocking && h.pool != nil {
		h.pool.Run(call)
	} else {
		call()
	}
	return resp, err
}

// Process calls the plug-in's body entry point, serialized behind the
// handle's mutex and dispatched to the blocking pool if configured.
func (h *Handle) Process(url, method string, headers HeaderView, body []byte) (*Response, error) {
	var resp *Response
	var err error
	call := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		resp, err = h.proc.Process(url, method, headers, body)
	}

	if h.processBlocking && h.pool != nil {
		h.pool.Run(call)
	} else {
		call()
	}
	return resp, err
}
