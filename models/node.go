package models

// Contributor is one stake contribution to a service node.
type Contributor struct {
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
}

// NodeState is a service node as reported by get_service_nodes. Amounts are atomic units.
type NodeState struct {
	Pubkey                string        `json:"service_node_pubkey"`
	RegistrationHeight    uint64        `json:"registration_height"`
	RequestedUnlockHeight uint64        `json:"requested_unlock_height"` // 0 = no unlock requested
	LastRewardBlockHeight uint64        `json:"last_reward_block_height"`
	LastUptimeProof       int64         `json:"last_uptime_proof"` // unix seconds, 0 = never
	Active                *bool         `json:"active,omitempty"`  // absent on older nodes
	TotalContributed      uint64        `json:"total_contributed"`
	StakingRequirement    uint64        `json:"staking_requirement"`
	PortionsForOperator   uint64        `json:"portions_for_operator"`
	OperatorAddress       string        `json:"operator_address"`
	Contributors          []Contributor `json:"contributors"`
	Version               Version       `json:"service_node_version"`
	PublicIP              string        `json:"public_ip"`
	EarnedDowntimeBlocks  int64         `json:"earned_downtime_blocks"`
}

// IsActive reports whether the network considers the node active. Nodes that
// don't report the flag predate decommissioning and are always active.
func (n *NodeState) IsActive() bool {
	return n.Active == nil || *n.Active
}

// Staked reports whether the node has its full stake.
func (n *NodeState) Staked() bool {
	return n.TotalContributed >= n.StakingRequirement
}

// Decommissioned reports a fully staked node the network has temporarily deactivated.
func (n *NodeState) Decommissioned() bool {
	return n.Staked() && !n.IsActive()
}
