package monitor

import (
	"snwatch/models"
	"snwatch/rewards"
)

// expectedRetainBlocks is how long past its expiry an absent node's entry is kept.
const expectedRetainBlocks = 720 * 7

// expiryTracker remembers when each registered node's registration is due to
// end so a later disappearance can be classified as expected or not. It is
// only touched from the tick goroutine.
type expiryTracker struct {
	networks map[bool]map[string]uint64
}

func newExpiryTracker() *expiryTracker {
	return &expiryTracker{networks: make(map[bool]map[string]uint64)}
}

// Observe records the expiry of every node in snap and prunes stale entries
// of nodes no longer registered.
func (t *expiryTracker) Observe(snap *models.NetworkSnapshot) {
	if snap == nil {
		return
	}
	expiries, ok := t.networks[snap.Testnet]
	if !ok {
		expiries = make(map[string]uint64)
		t.networks[snap.Testnet] = expiries
	}
	for pubkey, node := range snap.Nodes {
		if expiry, ok := rewards.ExpiryBlock(node, snap.Testnet); ok {
			expiries[pubkey] = expiry
		} else {
			delete(expiries, pubkey)
		}
	}
	for pubkey, expiry := range expiries {
		if _, registered := snap.Nodes[pubkey]; !registered && snap.Height > expiry+expectedRetainBlocks {
			delete(expiries, pubkey)
		}
	}
}

// Expected reports whether a node missing at height had reached its expiry.
func (t *expiryTracker) Expected(testnet bool, pubkey string, height uint64) bool {
	expiry, ok := t.networks[testnet][pubkey]
	return ok && height >= expiry
}
