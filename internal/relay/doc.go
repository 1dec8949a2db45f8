// Package relay supervises an external NOSTR relay process.
//
// A Launcher owns at most one running relay. It renders the relay's TOML
// configuration file, starts the relay through the first strategy that
// succeeds (Docker container, locally built binary, bundled sidecar),
// verifies it with a liveness probe and reports status on demand.
//
// The handle slot is guarded by a mutex that is never held across the
// settle delay or a network probe, so status polls stay responsive while a
// start is being verified.
//
// Example usage:
//
//	l, err := relay.New(relay.DefaultConfig(), relay.Options{
//	    Strategies: []relay.Strategy{
//	        relay.NewDockerStrategy("docker", "scsibug/nostr-rs-relay:latest", "privacy-lion-relay"),
//	        relay.NewLocalStrategy(relay.DefaultSearchPaths()),
//	    },
//	    Prober: relay.NewTCPProber(5 * time.Second),
//	})
//	if err != nil {
//	    return err
//	}
//
//	status, err := l.Start(ctx)
package relay
