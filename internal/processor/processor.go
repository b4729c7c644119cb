// Package processor hosts user-supplied plug-in objects and resolves, for
// a given (schema-id, method) pair, which one applies.
package processor

// HeaderView is the read-only capability a plug-in gets over the inbound
// request headers. It preserves duplicate header names and makes no
// assumption that values are valid UTF-8, since header bytes come from the
// wire verbatim.
type HeaderView interface {
	Len() int
	Has(name string) bool
	Get(name string) (string, bool)
	GetAll(name string) []string
	Names() []string
	Pairs() [][2]string
}

// HeaderPair is one outbound header name/value the plug-in asked to set.
type HeaderPair struct {
	Name  string
	Value string
}

// Response is the optional short-circuit decision a plug-in entry point
// may return. A nil field defers to the pipeline's own default for it.
type Response struct {
	Forward bool
	Status  *int
	Headers []HeaderPair
	Body    []byte
}

// Processor is the mandatory entry point every plug-in must export:
// inspect or synthesize a response once a bounded body prefix is
// available.
type Processor interface {
	Process(url, method string, headers HeaderView, body []byte) (*Response, error)
}

// HeadProcessor is the optional entry point a plug-in may additionally
// implement to run before the body is read at all. The registry detects
// support for it via an interface assertion rather than a config flag.
type HeadProcessor interface {
	ProcessHead(url, method string, headers HeaderView) (*Response, error)
}
