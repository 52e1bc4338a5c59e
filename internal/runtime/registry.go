package runtime

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/spindlehq/spindle/internal/model"
)

// InprocPrefix marks module references that name a registered in-process
// worker function rather than a file.
const InprocPrefix = "go:"

// RuntimeInfo pairs a runtime kind with its capabilities.
type RuntimeInfo struct {
	Kind         string       `json:"kind"`
	Capabilities Capabilities `json:"capabilities"`
}

// Registry holds registered runtimes and resolves which one to use for a
// given launch request.
type Registry struct {
	mu       sync.RWMutex
	runtimes map[string]Runtime
}

// NewRegistry creates an empty runtime registry.
func NewRegistry() *Registry {
	return &Registry{
		runtimes: make(map[string]Runtime),
	}
}

// Register adds a runtime to the registry under the given kind.
func (r *Registry) Register(kind string, rt Runtime) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runtimes[kind] = rt
}

// Resolve returns the runtime to use for the given kind and module reference.
// Kind "auto" routes go:-prefixed references to the in-process runtime and
// everything else to the process runtime. Returns an error if the resolved
// runtime is not registered.
func (r *Registry) Resolve(kind, moduleRef string) (Runtime, string, error) {
	target := kind
	if target == "" || target == model.KindAuto {
		if strings.HasPrefix(moduleRef, InprocPrefix) {
			target = model.KindInproc
		} else {
			target = model.KindProcess
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	rt, ok := r.runtimes[target]
	if !ok {
		return nil, "", fmt.Errorf("runtime %q is not registered", target)
	}
	return rt, target, nil
}

// List returns information about all registered runtimes, sorted by kind for
// a stable API response.
func (r *Registry) List() []RuntimeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]RuntimeInfo, 0, len(r.runtimes))
	for kind, rt := range r.runtimes {
		infos = append(infos, RuntimeInfo{
			Kind:         kind,
			Capabilities: rt.Capabilities(),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Kind < infos[j].Kind
	})
	return infos
}
