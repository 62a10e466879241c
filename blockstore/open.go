package blockstore

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/bitfsorg/cryptree-go/config"
)

// Open builds the Store selected by cfg.Backend. The returned close function
// releases any database handle and is safe to call once.
//
// For the http backend, endpoints come from cfg.Endpoints or, when empty, from
// SRV discovery of cfg.Discovery. Discovery goes through the system resolver
// unless cfg.DNSSEC names an upstream, in which case only authenticated
// answers are accepted. Remote stores are fronted by a local bbolt cache
// under cfg.DataDir.
func Open(cfg config.Config, log logrus.FieldLogger) (Store, func() error, error) {
	log = orDiscard(log)
	noop := func() error { return nil }

	switch cfg.Backend {
	case config.BackendMemory:
		return NewMemStore(), noop, nil

	case config.BackendFile:
		fs, err := NewFileStore(filepath.Join(cfg.DataDir, "blocks"), log)
		if err != nil {
			return nil, nil, err
		}
		return fs, noop, nil

	case config.BackendBolt:
		bs, err := OpenBoltStore(filepath.Join(cfg.DataDir, "blocks.db"), log)
		if err != nil {
			return nil, nil, err
		}
		return bs, bs.Close, nil

	case config.BackendBadger:
		bs, err := OpenBadgerStore(filepath.Join(cfg.DataDir, "badger"), log)
		if err != nil {
			return nil, nil, err
		}
		return bs, bs.Close, nil

	case config.BackendHTTP:
		endpoints := cfg.Endpoints
		if len(endpoints) == 0 {
			resolver := DefaultDNSResolver
			if cfg.DNSSEC != "" {
				resolver = NewDNSSECResolver(cfg.DNSSEC)
			}
			var err error
			endpoints, err = ResolveEndpoints(cfg.Discovery, resolver)
			if err != nil {
				return nil, nil, err
			}
		}
		if len(endpoints) == 0 {
			return nil, nil, ErrNoEndpoints
		}
		remotes := make([]Store, len(endpoints))
		for i, ep := range endpoints {
			remotes[i] = NewHTTPStore(ep)
		}
		cache, err := OpenBoltStore(filepath.Join(cfg.DataDir, "cache.db"), log)
		if err != nil {
			return nil, nil, err
		}
		log.WithField("endpoints", endpoints).Info("using remote block servers")
		return NewTieredStore(cache, remotes, log), cache.Close, nil

	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
