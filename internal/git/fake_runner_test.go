package git

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// fakeRunner scripts git command responses for tests. Exact-match stubs are
// consumed in order; prefix stubs answer any number of calls and cover
// commands with generated arguments like branch names.
type fakeRunner struct {
	mu       sync.Mutex
	queued   map[string][]fakeResponse
	always   map[string]fakeResponse
	prefixes []prefixStub
	calls    []fakeCall
}

type fakeResponse struct {
	out string
	err error
}

type prefixStub struct {
	prefix string
	resp   fakeResponse
}

type fakeCall struct {
	dir  string
	args []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		queued: make(map[string][]fakeResponse),
		always: make(map[string]fakeResponse),
	}
}

func (f *fakeRunner) stub(args, out string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued[args] = append(f.queued[args], fakeResponse{out: out, err: err})
}

func (f *fakeRunner) stubAlways(args, out string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.always[args] = fakeResponse{out: out, err: err}
}

func (f *fakeRunner) stubPrefix(prefix, out string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefixes = append(f.prefixes, prefixStub{prefix: prefix, resp: fakeResponse{out: out, err: err}})
}

func (f *fakeRunner) Exec(ctx context.Context, dir string, args ...string) (string, error) {
	key := strings.Join(args, " ")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fakeCall{dir: dir, args: append([]string(nil), args...)})

	if queue := f.queued[key]; len(queue) > 0 {
		resp := queue[0]
		f.queued[key] = queue[1:]
		return resp.out, resp.err
	}
	if resp, ok := f.always[key]; ok {
		return resp.out, resp.err
	}
	for _, p := range f.prefixes {
		if strings.HasPrefix(key, p.prefix) {
			return p.resp.out, p.resp.err
		}
	}
	return "", fmt.Errorf("unexpected git call: %s", key)
}

func (f *fakeRunner) callsFor(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, call := range f.calls {
		if strings.HasPrefix(strings.Join(call.args, " "), prefix) {
			count++
		}
	}
	return count
}

// argsFor returns the full argument list of the nth call matching the prefix.
func (f *fakeRunner) argsFor(prefix string, n int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := 0
	for _, call := range f.calls {
		if strings.HasPrefix(strings.Join(call.args, " "), prefix) {
			if seen == n {
				return call.args
			}
			seen++
		}
	}
	return nil
}

var _ Runner = (*fakeRunner)(nil)
