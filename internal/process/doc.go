// Package process provides lifecycle management for a single child process.
//
// A Child wraps one spawn of an external program. It is used for the relay
// itself (local or sidecar binary) and for the attached `docker run` client
// that fronts the relay container.
//
// Features:
//   - Spawn in its own process group so the whole tree can be signalled
//   - Graceful stop: SIGTERM to the group, SIGKILL after a timeout
//   - Exit tracking through a done channel
//   - Log capture from subprocess stdout/stderr
//
// A Child is never restarted. Once it exits it stays exited and the owner
// decides whether to spawn a new one.
//
// Example usage:
//
//	child := process.NewChild(process.Config{
//	    Name:   "nostr-rs-relay",
//	    Binary: "/usr/local/bin/nostr-rs-relay",
//	    Args:   []string{"--config", "/tmp/privacy-lion-relay/config.toml"},
//	})
//
//	if err := child.Start(ctx); err != nil {
//	    return err
//	}
//	defer child.Stop()
package process
