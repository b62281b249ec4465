package models

import "time"

// ChainInfo is the subset of get_info the monitor uses.
type ChainInfo struct {
	Height uint64 `json:"height"`
}

// NetworkSnapshot is one poll's view of a network. It is never modified after
// the fetch that produced it; the next poll replaces it.
type NetworkSnapshot struct {
	Testnet   bool                  `json:"testnet"`
	Height    uint64                `json:"height"`
	FetchedAt time.Time             `json:"fetched_at"`
	Nodes     map[string]*NodeState `json:"nodes"`
}

// Node returns the state for pubkey, or nil when the node is not registered.
func (s *NetworkSnapshot) Node(pubkey string) *NodeState {
	if s == nil {
		return nil
	}
	return s.Nodes[pubkey]
}

func (s *NetworkSnapshot) Name() string {
	return NetworkName(s.Testnet)
}

func NetworkName(testnet bool) string {
	if testnet {
		return "testnet"
	}
	return "mainnet"
}
