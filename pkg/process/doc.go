/*
Package process provides the virtual process table and scheduler backing
the network subsystem's socket registry and kernel workers.

It implements a small process model inspired by Unix:

  - Process lifecycle management (creation, termination, state transitions)
  - A strict-priority run queue (PriorityScheduler) feeding the manager's
    dispatch loop, which launches queued kernel tasks
  - Per-process socket ownership: each Process carries the fd-indexed
    socket table netcore's Stack registers into, and ProcessManager
    implements netcore.SocketTable and netcore.TaskSpawner (netbind.go);
    terminating a process releases its sockets

# Process States

Processes can be in one of the following states:

  - Ready: Process is ready to run but waiting to be dispatched
  - Running: Process is currently executing
  - Waiting: Process is blocked waiting for I/O or other events
  - Zombie: Process has terminated and is about to be reaped

# Kernel tasks

The network stack's RX/TX workers enter the table as kernel tasks:
SpawnTask creates a process entry under parent pid 1, QueueSystemProcess
places it on the scheduler's run queue, and the dispatch loop launches
its entry once the scheduler selects it:

	taskID, cancel := pm.SpawnTask("rx-eth0", func(ctx context.Context) {
		// drain the interface's RX queue until cancelled
	})

Cancelling the context makes the entry return, after which the dispatch
loop reaps the task.
*/
package process
