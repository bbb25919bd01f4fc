package sysfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetRoundTrip(t *testing.T) {
	tree := New()
	tree.Set("/sys/net/lo/enabled", "1")

	v, ok := tree.Get("/sys/net/lo/enabled")
	require.True(t, ok)
	assert.Equal(t, "1", v)

	_, ok = tree.Get("/sys/net/lo/missing")
	assert.False(t, ok)
}

func TestPublishInterfaceWritesAllAttributes(t *testing.T) {
	tree := New()
	tree.PublishInterface("eth0", InterfaceStats{
		Enabled:   true,
		MAC:       "00:11:22:33:44:55",
		IPv4:      "10.0.0.1",
		Gateway:   "10.0.0.254",
		Loopback:  false,
		DriverTag: "memlink",
		RXDepth:   3,
		TXDepth:   0,
	})

	cases := map[string]string{
		"/sys/net/eth0/enabled":        "1",
		"/sys/net/eth0/address":        "00:11:22:33:44:55",
		"/sys/net/eth0/ipv4":           "10.0.0.1",
		"/sys/net/eth0/gateway":        "10.0.0.254",
		"/sys/net/eth0/loopback":       "0",
		"/sys/net/eth0/driver":         "memlink",
		"/sys/net/eth0/rx_queue_depth": "3",
		"/sys/net/eth0/tx_queue_depth": "0",
	}
	for path, want := range cases {
		got, ok := tree.Get(path)
		require.True(t, ok, "missing %s", path)
		assert.Equal(t, want, got, "mismatch at %s", path)
	}
}

func TestPublishInterfaceOverwritesPriorState(t *testing.T) {
	tree := New()
	tree.PublishInterface("lo", InterfaceStats{Enabled: false, RXDepth: 0})
	tree.PublishInterface("lo", InterfaceStats{Enabled: true, RXDepth: 5})

	v, _ := tree.Get("/sys/net/lo/enabled")
	assert.Equal(t, "1", v)
	v, _ = tree.Get("/sys/net/lo/rx_queue_depth")
	assert.Equal(t, "5", v)
}

func TestSnapshotIsSortedByPath(t *testing.T) {
	tree := New()
	tree.Set("/sys/net/eth0/enabled", "1")
	tree.Set("/sys/net/a0/enabled", "1")

	lines := tree.Snapshot()
	require.Len(t, lines, 2)
	assert.Equal(t, "/sys/net/a0/enabled = 1", lines[0])
	assert.Equal(t, "/sys/net/eth0/enabled = 1", lines[1])
}
