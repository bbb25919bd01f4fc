package netcore

import (
	"net"
	"sync"

	"netkern/pkg/netstack/route"
)

// InterfaceRegistry is the sequential, append-only container of interface
// descriptors. It is safe to read concurrently without a
// lock once Init has finished appending; the mutex exists for the append
// path and for tests that build a registry incrementally.
type InterfaceRegistry struct {
	mu         sync.RWMutex
	interfaces []*Interface
	Routes     *route.RouteTable
}

// NewInterfaceRegistry returns an empty registry with an empty route table.
func NewInterfaceRegistry() *InterfaceRegistry {
	return &InterfaceRegistry{Routes: route.NewRouteTable()}
}

// Register appends a new interface and returns it. Callers append the
// loopback interface last.
func (r *InterfaceRegistry) Register(name string) *Interface {
	r.mu.Lock()
	defer r.mu.Unlock()
	iface := newInterface(len(r.interfaces), name)
	r.interfaces = append(r.interfaces, iface)
	return iface
}

// NumberOfInterfaces returns the registry's length.
func (r *InterfaceRegistry) NumberOfInterfaces() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.interfaces)
}

// InterfaceAt returns the i-th registered interface.
func (r *InterfaceRegistry) InterfaceAt(i int) *Interface {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i < 0 || i >= len(r.interfaces) {
		return nil
	}
	return r.interfaces[i]
}

// All returns a snapshot slice of every registered interface, in
// registration order.
func (r *InterfaceRegistry) All() []*Interface {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Interface, len(r.interfaces))
	copy(out, r.interfaces)
	return out
}

var loopbackAddr = net.IPv4(127, 0, 0, 1)

// SelectInterface picks the outbound interface for dest. A route table hit for
// dest takes priority, naming the outbound interface by name; absent a
// matching route it falls back to the simple rule: for 127.0.0.1, the
// first enabled loopback interface, otherwise the first enabled
// non-loopback interface. It panics if no enabled interface exists —
// callers (the socket API) must check NumberOfInterfaces first and
// translate that into ErrNoInterface before ever reaching here.
func (r *InterfaceRegistry) SelectInterface(dest net.IP) *Interface {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.Routes != nil {
		if rt := r.Routes.Lookup(dest); rt != nil && rt.Valid {
			for _, iface := range r.interfaces {
				if iface.Enabled && iface.Name == rt.Interface {
					return iface
				}
			}
		}
	}

	loopback := dest.Equal(loopbackAddr)
	var fallback *Interface
	for _, iface := range r.interfaces {
		if !iface.Enabled {
			continue
		}
		if fallback == nil {
			fallback = iface
		}
		if loopback {
			if iface.Loopback {
				return iface
			}
			continue
		}
		if !iface.Loopback {
			return iface
		}
	}
	// A host whose only enabled interface is loopback still sends
	// everything through it rather than having nowhere to go.
	if fallback != nil {
		return fallback
	}
	panic("netcore: select_interface found no enabled interface")
}
