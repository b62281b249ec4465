package snapshot

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"snwatch/logger"
	"snwatch/models"
)

// Source is a node RPC endpoint for one network.
type Source interface {
	GetInfo(ctx context.Context) (*models.ChainInfo, error)
	GetServiceNodes(ctx context.Context) ([]*models.NodeState, error)
}

// Snapshots is the result of one poll. Testnet is nil when testnet is not
// monitored or its fetch failed (TestnetErr says which).
type Snapshots struct {
	Mainnet    *models.NetworkSnapshot
	Testnet    *models.NetworkSnapshot
	TestnetErr error
}

// Network returns the snapshot for the requested network, possibly nil.
func (s Snapshots) Network(testnet bool) *models.NetworkSnapshot {
	if testnet {
		return s.Testnet
	}
	return s.Mainnet
}

// Fetcher polls mainnet and, optionally, testnet.
type Fetcher struct {
	mainnet Source
	testnet Source
	now     func() time.Time
}

// NewFetcher creates a fetcher. testnet may be nil to monitor mainnet only.
func NewFetcher(mainnet, testnet Source) *Fetcher {
	return &Fetcher{mainnet: mainnet, testnet: testnet, now: time.Now}
}

// Fetch polls both networks concurrently. Only a mainnet failure is an error.
func (f *Fetcher) Fetch(ctx context.Context) (Snapshots, error) {
	var snaps Snapshots
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		snap, err := f.fetchNetwork(gctx, f.mainnet, false)
		if err != nil {
			return err
		}
		snaps.Mainnet = snap
		return nil
	})

	if f.testnet != nil {
		g.Go(func() error {
			snap, err := f.fetchNetwork(gctx, f.testnet, true)
			if err != nil {
				logger.Logger.Warn("Testnet fetch failed; skipping testnet this tick", zap.Error(err))
				snaps.TestnetErr = err
				return nil
			}
			snaps.Testnet = snap
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Snapshots{}, err
	}
	return snaps, nil
}

func (f *Fetcher) fetchNetwork(ctx context.Context, src Source, testnet bool) (*models.NetworkSnapshot, error) {
	name := models.NetworkName(testnet)
	info, err := src.GetInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	states, err := src.GetServiceNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	nodes := make(map[string]*models.NodeState, len(states))
	for _, st := range states {
		if st == nil || st.Pubkey == "" {
			continue
		}
		nodes[st.Pubkey] = st
	}
	return &models.NetworkSnapshot{
		Testnet:   testnet,
		Height:    info.Height,
		FetchedAt: f.now(),
		Nodes:     nodes,
	}, nil
}
