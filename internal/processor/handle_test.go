package processor

import (
	"errors"
	"testing"
)

type fakeProcessor struct {
	resp  *Response
	err   error
	calls int
}

func (f *fakeProcessor) Process(_, _ string, _ HeaderView, _ []byte) (*Response, error) {
	f.calls++
	return f.resp, f.err
}

type fakeHeadProcessor struct {
	*fakeProcessor
	headResp *Response
	headErr  error
}

func (f *fakeHeadProcessor) ProcessHead(_, _ string, _ HeaderView) (*Response, error) {
	return f.headResp, f.headErr
}

func TestHandle_Process(t *testing.T) {
	fp := &fakeProcessor{resp: &Response{Forward: true}}
	h := &Handle{proc: fp}

	resp, err := h.Process("/1", "POST", NewHeaderView(nil), []byte("x"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !resp.Forward {
		t.Error("expected Forward = true")
	}
	if fp.calls != 1 {
		t.Errorf("calls = %d, want 1", fp.calls)
	}
}

func TestHandle_Process_Error(t *testing.T) {
	fp := &fakeProcessor{err: errors.New("boom")}
	h := &Handle{proc: fp}

	_, err := h.Process("/1", "POST", NewHeaderView(nil), nil)
	if err == nil {
		t.Fatal("expected error to propagate")
	}
}

func TestHandle_ProcessHead_NotImplemented(t *testing.T) {
	h := &Handle{proc: &fakeProcessor{}}

	resp, err := h.ProcessHead("/1", "POST", NewHeaderView(nil))
	if err != nil || resp != nil {
		t.Errorf("expected (nil, nil) when head is not implemented, got (%v, %v)", resp, err)
	}
	if h.ImplementsHead() {
		t.Error("ImplementsHead() should be false")
	}
}

func TestHandle_ProcessHead_Implemented(t *testing.T) {
	fhp := &fakeHeadProcessor{fakeProcessor: &fakeProcessor{}, headResp: &Response{Forward: false}}
	h := &Handle{proc: fhp.fakeProcessor, head: fhp}

	if !h.ImplementsHead() {
		t.Fatal("ImplementsHead() should be true")
	}

	resp, err := h.ProcessHead("/1", "GET", NewHeaderView(nil))
	if err != nil {
		t.Fatalf("ProcessHead() error = %v", err)
	}
	if resp.Forward {
		t.Error("expected Forward = false")
	}
}

func TestHandle_Process_BlockingDispatch(t *testing.T) {
	fp := &fakeProcessor{resp: &Response{Forward: true}}
	h := &Handle{proc: fp, processBlocking: true, pool: newBlockingPool(1)}
	defer h.pool.Close()

	resp, err := h.Process("/1", "POST", NewHeaderView(nil), nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !resp.Forward {
		t.Error("expected Forward = true")
	}
}

func TestSplitCallablePath(t *testing.T) {
	tests := []struct {
		in          string
		path        string
		symbol      string
		expectError bool
	}{
		{"/plugins/geo.so:Processor", "/plugins/geo.so", "Processor", false},
		{"no-colon", "", "", true},
		{":Processor", "", "", true},
		{"/plugins/geo.so:", "", "", true},
	}
	for _, tt := range tests {
		path, symbol, err := splitCallablePath(tt.in)
		if (err != nil) != tt.expectError {
			t.Errorf("splitCallablePath(%q) error = %v, expectError %v", tt.in, err, tt.expectError)
			continue
		}
		if err == nil && (path != tt.path || symbol != tt.symbol) {
			t.Errorf("splitCallablePath(%q) = (%q, %q), want (%q, %q)", tt.in, path, symbol, tt.path, tt.symbol)
		}
	}
}
