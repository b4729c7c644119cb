package processor

import (
	"net/http"
	"net/textproto"
)

// httpHeaderView adapts an http.Header into a HeaderView. Lookups are
// case-insensitive per RFC 7230; duplicate values for the same name are
// preserved in arrival order.
type httpHeaderView struct {
	h http.Header
}

// NewHeaderView wraps h as a HeaderView.
func NewHeaderView(h http.Header) HeaderView {
	return httpHeaderView{h: h}
}

func (v httpHeaderView) Len() int {
	n := 0
	for _, values := range v.h {
		n += len(values)
	}
	return n
}

func (v httpHeaderView) Has(name string) bool {
	_, ok := v.h[textproto.CanonicalMIMEHeaderKey(name)]
	return ok
}

func (v httpHeaderView) Get(name string) (string, bool) {
	values, ok := v.h[textproto.CanonicalMIMEHeaderKey(name)]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func (v httpHeaderView) GetAll(name string) []string {
	return v.h[textproto.CanonicalMIMEHeaderKey(name)]
}

func (v httpHeaderView) Names() []string {
	names := make([]string, 0, len(v.h))
	for name := range v.h {
		names = append(names, name)
	}
	return names
}

func (v httpHeaderView) Pairs() [][2]string {
	pairs := make([][2]string, 0, v.Len())
	for name, values := range v.h {
		for _, value := range values {
			pairs = append(pairs, [2]string{name, value})
		}
	}
	return pairs
}
