package storegate

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-storegate/events"
	"github.com/goliatone/go-storegate/platform"
)

// EventHandlerPack is a named batch of webhook delivery handlers a
// downstream module contributes.
type EventHandlerPack struct {
	Name     string
	Handlers []events.Handler
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

// ExtensionHooks lets embedding applications contribute platform
// profiles, webhook handlers, and command/query bundles without
// touching gate wiring directly.
type ExtensionHooks struct {
	mu sync.RWMutex

	profiles     map[string]platform.Profile
	handlerPacks map[string]EventHandlerPack
	bundles      map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		profiles:     map[string]platform.Profile{},
		handlerPacks: map[string]EventHandlerPack{},
		bundles:      map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterProfile(name string, profile platform.Profile) error {
	if h == nil {
		return fmt.Errorf("storegate: extension hooks are nil")
	}
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return fmt.Errorf("storegate: profile name is required")
	}
	if err := profile.Validate(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.profiles[name]; exists {
		return fmt.Errorf("storegate: profile %q already registered", name)
	}
	h.profiles[name] = profile
	return nil
}

func (h *ExtensionHooks) RegisterEventHandlerPack(pack EventHandlerPack) error {
	if h == nil {
		return fmt.Errorf("storegate: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("storegate: event handler pack name is required")
	}
	if len(pack.Handlers) == 0 {
		return fmt.Errorf("storegate: event handler pack %q has no handlers", name)
	}

	normalized := EventHandlerPack{
		Name:     name,
		Handlers: append([]events.Handler(nil), pack.Handlers...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.handlerPacks[name]; exists {
		return fmt.Errorf("storegate: event handler pack %q already registered", name)
	}
	h.handlerPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("storegate: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("storegate: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("storegate: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("storegate: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// ApplyEventHandlerPacks registers every contributed handler on the
// dispatcher in deterministic pack order.
func (h *ExtensionHooks) ApplyEventHandlerPacks(dispatcher *events.Dispatcher) error {
	if h == nil {
		return nil
	}
	if dispatcher == nil {
		return fmt.Errorf("storegate: event dispatcher is required")
	}

	for _, pack := range h.EventHandlerPacks() {
		for _, handler := range pack.Handlers {
			if handler == nil {
				return fmt.Errorf("storegate: event handler pack %q contains nil handler", pack.Name)
			}
			if err := dispatcher.Register(handler); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("storegate: command/query service is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) EventHandlerPacks() []EventHandlerPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.handlerPacks))
	for name := range h.handlerPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]EventHandlerPack, 0, len(names))
	for _, name := range names {
		pack := h.handlerPacks[name]
		out = append(out, EventHandlerPack{
			Name:     pack.Name,
			Handlers: append([]events.Handler(nil), pack.Handlers...),
		})
	}
	return out
}

func (h *ExtensionHooks) Profile(name string) (platform.Profile, bool) {
	if h == nil {
		return platform.Profile{}, false
	}
	name = strings.TrimSpace(strings.ToLower(name))
	h.mu.RLock()
	defer h.mu.RUnlock()
	profile, ok := h.profiles[name]
	return profile, ok
}

func (h *ExtensionHooks) ProfileNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.profiles))
	for name := range h.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
