package client

import (
	"fmt"

	"go.uber.org/zap"

	"feedprobe/internal/config"
	"feedprobe/internal/feed"
	"feedprobe/internal/nupkg"
	"feedprobe/internal/protocol"
)

// NewFeedClient creates a client speaking the V2 feed protocol, configured
// from a source's settings and the CLI poll policy. Options are applied last.
func NewFeedClient(source config.Source, pollCfg config.Poll, log *zap.Logger, opts ...Option) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}

	lookup, err := ParseLookup(source.Lookup)
	if err != nil {
		return nil, err
	}

	policy, err := pollCfg.Policy()
	if err != nil {
		return nil, fmt.Errorf("invalid poll configuration: %w", err)
	}

	p := protocol.New(protocol.WithLogger(log.Named("protocol")))

	base := []Option{
		WithLookup(lookup),
		WithPollPolicy(policy),
		WithLogger(log),
	}
	return NewClient(p, nupkg.NewReader(), append(base, opts...)...), nil
}

// GetClient creates a client for the named source, or the current one when
// name is empty, and returns the resolved source alongside it
func GetClient(cfg config.CLIConfig, name string, log *zap.Logger, opts ...Option) (*Client, feed.Source, error) {
	src, sourceCfg, err := cfg.ResolveSource(name)
	if err != nil {
		return nil, feed.Source{}, err
	}
	if err := validateSource(src); err != nil {
		return nil, feed.Source{}, err
	}

	c, err := NewFeedClient(sourceCfg, cfg.Poll, log, opts...)
	if err != nil {
		return nil, feed.Source{}, fmt.Errorf("source '%s': %w", src, err)
	}
	return c, src, nil
}
