package firebase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

type Call struct {
	Method string
	Path   string
	Body   json.RawMessage
}

// MemoryStore is an in-process state tree with the same merge semantics as the
// remote database. It is used when no database URL is configured and in tests.
type MemoryStore struct {
	mu    sync.Mutex
	root  map[string]any
	calls []Call

	// GetErr, when set, fails every Get.
	GetErr   error
	WriteErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{root: map[string]any{}}
}

// Seed stores a value without recording a call.
func (m *MemoryStore) Seed(path string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(split(path), normalize(value))
}

func (m *MemoryStore) Get(_ context.Context, path string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "GET", Path: path})
	if m.GetErr != nil {
		return nil, m.GetErr
	}

	var node any = m.root
	for _, key := range split(path) {
		obj, ok := node.(map[string]any)
		if !ok {
			return nil, nil
		}
		if node, ok = obj[key]; !ok {
			return nil, nil
		}
	}
	if node == nil {
		return nil, nil
	}
	return json.Marshal(node)
}

func (m *MemoryStore) Patch(_ context.Context, path string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal patch for %s: %w", path, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "PATCH", Path: path, Body: body})
	if m.WriteErr != nil {
		return m.WriteErr
	}

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return fmt.Errorf("patch body for %s must be an object: %w", path, err)
	}
	keys := split(path)
	for k, v := range fields {
		m.set(append(keys[:len(keys):len(keys)], split(k)...), v)
	}
	return nil
}

func (m *MemoryStore) Put(_ context.Context, path string, value any) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for %s: %w", path, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "PUT", Path: path, Body: body})
	if m.WriteErr != nil {
		return m.WriteErr
	}
	var decoded any
	_ = json.Unmarshal(body, &decoded)
	m.set(split(path), decoded)
	return nil
}

// Calls returns the recorded calls, optionally filtered by method.
func (m *MemoryStore) Calls(method string) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Call
	for _, c := range m.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (m *MemoryStore) set(keys []string, value any) {
	if len(keys) == 0 {
		if obj, ok := value.(map[string]any); ok {
			m.root = obj
		} else {
			m.root = map[string]any{}
		}
		return
	}
	node := m.root
	for _, key := range keys[:len(keys)-1] {
		child, ok := node[key].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[key] = child
		}
		node = child
	}
	last := keys[len(keys)-1]
	if value == nil {
		delete(node, last)
		return
	}
	node[last] = value
}

func split(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// normalize round-trips a Go value through JSON so the tree only holds decoded JSON types.
func normalize(value any) any {
	body, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	var out any
	_ = json.Unmarshal(body, &out)
	return out
}
