// Package route implements the longest-prefix-match routing table
// InterfaceRegistry consults from SelectInterface: a set of CIDR
// destinations each bound to an outbound interface name.
package route

import (
	"fmt"
	network "net"
	"sync"
)

// Route is a single routing table entry.
type Route struct {
	Dest      network.IPNet // Destination network
	Gateway   network.IP    // Next hop gateway (nil for direct)
	Interface string        // Output interface name
	Metric    int           // Route metric
	Valid     bool          // Route is valid
	Preferred bool          // Route is preferred
}

func (r *Route) key() string { return r.Dest.String() }

// RouteTable is a routing table indexed by destination CIDR. Entries are
// kept in a map for O(1) duplicate detection on insert; Lookup still walks
// every valid entry since longest-prefix match has no shortcut over a
// handful of routes.
type RouteTable struct {
	mu     sync.RWMutex
	byDest map[string]*Route
}

// NewRouteTable creates an empty routing table.
func NewRouteTable() *RouteTable {
	return &RouteTable{byDest: make(map[string]*Route)}
}

// AddRoute inserts route, rejecting a nil destination or a destination
// already present.
func (rt *RouteTable) AddRoute(r Route) error {
	if r.Dest.IP == nil {
		return fmt.Errorf("route: invalid destination")
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if _, exists := rt.byDest[r.key()]; exists {
		return fmt.Errorf("route: %s already exists", r.key())
	}
	rt.byDest[r.key()] = &r
	return nil
}

// RemoveRoute deletes the entry for dest, or reports an error if absent.
func (rt *RouteTable) RemoveRoute(dest network.IPNet) error {
	key := dest.String()

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if _, ok := rt.byDest[key]; !ok {
		return fmt.Errorf("route: %s not found", key)
	}
	delete(rt.byDest, key)
	return nil
}

// Lookup returns the most specific valid route containing dest, or nil if
// none matches. Specificity is the destination network's prefix length;
// ties keep whichever entry was examined first.
func (rt *RouteTable) Lookup(dest network.IP) *Route {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	var best *Route
	bestPrefix := -1
	for _, r := range rt.byDest {
		if !r.Valid || !r.Dest.Contains(dest) {
			continue
		}
		if prefix, _ := r.Dest.Mask.Size(); prefix > bestPrefix {
			best, bestPrefix = r, prefix
		}
	}
	return best
}

// GetAllRoutes returns a value-copy snapshot of every entry.
func (rt *RouteTable) GetAllRoutes() []Route {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	out := make([]Route, 0, len(rt.byDest))
	for _, r := range rt.byDest {
		out = append(out, *r)
	}
	return out
}

// SetDefaultRoute installs a preferred 0.0.0.0/0 entry through gateway via
// iface.
func (rt *RouteTable) SetDefaultRoute(gateway network.IP, iface string) error {
	_, dest, _ := network.ParseCIDR("0.0.0.0/0")
	return rt.AddRoute(Route{
		Dest:      *dest,
		Gateway:   gateway,
		Interface: iface,
		Valid:     true,
		Preferred: true,
	})
}

// AddLocalRoute installs a gateway-less /24 entry covering localIP's
// network, reached directly through iface.
func (rt *RouteTable) AddLocalRoute(localIP network.IP, iface string) error {
	mask := network.CIDRMask(24, 32)
	return rt.AddRoute(Route{
		Dest:      network.IPNet{IP: localIP.Mask(mask), Mask: mask},
		Interface: iface,
		Valid:     true,
		Preferred: true,
	})
}

// Stats summarizes the table's current contents.
type Stats struct {
	TotalRoutes   int
	ValidRoutes   int
	DefaultRoutes int
}

// Stats computes a fresh summary of the table.
func (rt *RouteTable) Stats() Stats {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	s := Stats{TotalRoutes: len(rt.byDest)}
	for _, r := range rt.byDest {
		if r.Valid {
			s.ValidRoutes++
		}
		if prefix, _ := r.Dest.Mask.Size(); prefix == 0 {
			s.DefaultRoutes++
		}
	}
	return s
}
