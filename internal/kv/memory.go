package kv

import (
	"context"
	"sync"
)

// Memory is an in-process backing shared by any number of Tab handles.
type Memory struct {
	mu       sync.Mutex
	data     map[string][]byte
	watchers map[string]map[*memWatcher]struct{}
}

type memWatcher struct {
	origin string
	ch     chan Change
}

func NewMemory() *Memory {
	return &Memory{
		data:     make(map[string][]byte),
		watchers: make(map[string]map[*memWatcher]struct{}),
	}
}

// Tab returns a Store handle writing as origin.
func (m *Memory) Tab(origin string) Store {
	return &memTab{m: m, origin: origin}
}

type memTab struct {
	m      *Memory
	origin string
}

func (t *memTab) Origin() string { return t.origin }

func (t *memTab) Get(_ context.Context, key string) ([]byte, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	v, ok := t.m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (t *memTab) Set(_ context.Context, key string, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)

	t.m.mu.Lock()
	t.m.data[key] = v
	t.m.mu.Unlock()
	t.m.publish(key, t.origin)
	return nil
}

func (t *memTab) Delete(_ context.Context, key string) error {
	t.m.mu.Lock()
	_, existed := t.m.data[key]
	delete(t.m.data, key)
	t.m.mu.Unlock()
	if existed {
		t.m.publish(key, t.origin)
	}
	return nil
}

func (t *memTab) Watch(ctx context.Context, key string) (<-chan Change, error) {
	w := &memWatcher{origin: t.origin, ch: make(chan Change, 1)}

	t.m.mu.Lock()
	if t.m.watchers[key] == nil {
		t.m.watchers[key] = make(map[*memWatcher]struct{})
	}
	t.m.watchers[key][w] = struct{}{}
	t.m.mu.Unlock()

	go func() {
		<-ctx.Done()
		t.m.mu.Lock()
		delete(t.m.watchers[key], w)
		close(w.ch)
		t.m.mu.Unlock()
	}()
	return w.ch, nil
}

func (m *Memory) publish(key, origin string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for w := range m.watchers[key] {
		if w.origin == origin {
			continue
		}
		Notify(w.ch, Change{Key: key, Origin: origin})
	}
}
