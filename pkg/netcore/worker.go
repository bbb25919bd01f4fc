package netcore

import (
	"context"

	"github.com/sirupsen/logrus"
)

// startWorkers spawns the RX and TX goroutines for iface through the
// scheduler's TaskSpawner, recording the resulting task ids on the
// interface the way the source kernel records RX/TX thread pids. The
// spawner contract is responsible for actually starting fn in its own
// goroutine under the scheduler's supervision.
func (s *Stack) startWorkers(iface *Interface) {
	var rxCancel, txCancel context.CancelFunc
	iface.RXTaskID, rxCancel = s.spawner.SpawnTask("rx-"+iface.Name, func(ctx context.Context) {
		s.rxLoop(ctx, iface)
	})
	iface.TXTaskID, txCancel = s.spawner.SpawnTask("tx-"+iface.Name, func(ctx context.Context) {
		s.txLoop(ctx, iface)
	})
	iface.cancelWorkers = func() {
		rxCancel()
		txCancel()
	}
	s.log.WithFields(logrus.Fields{
		"interface": iface.Name,
		"rx_task":   iface.RXTaskID,
		"tx_task":   iface.TXTaskID,
	}).Debug("netcore: rx/tx workers spawned")
}

// rxLoop acquires the RX semaphore, pops one packet, and hands it to the
// link codec's decode chain. The packet's memory
// is released by whichever layer of the decode chain consumes it
// terminally (ultimately the dispatcher's Clone-and-deliver, or simply
// falling out of scope here if nothing claimed it).
func (s *Stack) rxLoop(ctx context.Context, iface *Interface) {
	for {
		pkt, err := iface.RXQueue.pop(ctx)
		if err != nil {
			s.log.WithField("interface", iface.Name).Debug("netcore: rx worker stopped")
			return
		}
		if iface.LinkCodec == nil {
			continue
		}
		if err := iface.LinkCodec.Decode(s, iface, pkt); err != nil {
			s.log.WithFields(logrus.Fields{
				"interface": iface.Name,
				"error":     err,
			}).Debug("netcore: inbound decode failed")
		}
	}
}

// txLoop acquires the TX semaphore, pops one packet, hands it to the
// driver's HWSend, then drops the buffer. Every packet
// reaching this loop is treated as kernel-owned; a codec that still hands a
// user-supplied buffer to the TX queue by the time Finalize returns is a
// programmer error, not a condition this loop can safely paper over, since
// releasing a buffer the caller still thinks it owns corrupts their memory.
func (s *Stack) txLoop(ctx context.Context, iface *Interface) {
	for {
		pkt, err := iface.TXQueue.pop(ctx)
		if err != nil {
			s.log.WithField("interface", iface.Name).Debug("netcore: tx worker stopped")
			return
		}
		if pkt.User {
			panic("user packet on tx queue")
		}
		if iface.hwSend != nil {
			if err := iface.hwSend(iface, pkt); err != nil {
				s.log.WithFields(logrus.Fields{
					"interface": iface.Name,
					"error":     err,
				}).Debug("netcore: hw_send failed")
			}
		}
		pkt.Payload = nil
	}
}

// Shutdown cancels every interface's worker goroutines. Not part of the
// source kernel's contract (workers there run forever) — provided purely
// so tests can tear down cleanly.
func (s *Stack) Shutdown() {
	for _, iface := range s.Registry.All() {
		if iface.cancelWorkers != nil {
			iface.cancelWorkers()
		}
	}
}
