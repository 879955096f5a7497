package translator

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xaionaro-go/hcibridge/transport"
)

// Factory builds an adapter on top of an already-opened device transport.
type Factory func(ctx context.Context, tr transport.Transport) (Adapter, error)

var (
	registryMutex sync.Mutex
	registry      = map[string]Factory{}
)

// Register makes an adapter available under the configuration name.
// It is meant to be called from the adapter package's init.
func Register(name string, f Factory) {
	registryMutex.Lock()
	defer registryMutex.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("translator: adapter %q registered twice", name))
	}
	registry[name] = f
}

// New resolves the configured adapter name and builds the adapter.
func New(ctx context.Context, name string, tr transport.Transport) (Adapter, error) {
	registryMutex.Lock()
	f, ok := registry[name]
	registryMutex.Unlock()
	if !ok {
		return nil, fmt.Errorf("translator: unknown adapter %q (have: %v)", name, Names())
	}
	return f(ctx, tr)
}

// Names lists the registered adapters, sorted.
func Names() []string {
	registryMutex.Lock()
	defer registryMutex.Unlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
