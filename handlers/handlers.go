package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"snwatch/logger"
	"snwatch/models"
	"snwatch/monitor"
	"snwatch/repository"
	"snwatch/rewards"
)

// SnapshotReader serves the most recently published snapshot of each network.
type SnapshotReader interface {
	Network(testnet bool) *models.NetworkSnapshot
}

// Handler contains the HTTP handlers for the watch API
type Handler struct {
	Repo      repository.SubscriptionRepositoryInterface
	Snapshots SnapshotReader
	Calc      *rewards.Calculator
	now       func() time.Time
}

// NewHandler creates and returns a new Handler instance
func NewHandler(repo repository.SubscriptionRepositoryInterface, snaps SnapshotReader, calc *rewards.Calculator) *Handler {
	return &Handler{Repo: repo, Snapshots: snaps, Calc: calc, now: time.Now}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Logger.Debug("Failed to write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// UnlockBuckets counts unlocking nodes by time left until they leave the network.
type UnlockBuckets struct {
	UnderOneDay     int `json:"under_1d"`
	OneToThreeDays  int `json:"1d_3d"`
	ThreeToSevenDay int `json:"3d_7d"`
	OverSevenDays   int `json:"over_7d"`
}

// NetworkStatus summarizes one network snapshot.
type NetworkStatus struct {
	Network          string         `json:"network"`
	Height           uint64         `json:"height"`
	FetchedAt        time.Time      `json:"fetched_at"`
	Active           int            `json:"active"`
	Decommissioned   int            `json:"decommissioned"`
	AwaitingStake    int            `json:"awaiting_stake"`
	Infinite         int            `json:"infinite"`
	Unlocking        UnlockBuckets  `json:"unlocking"`
	OldProofs        int            `json:"old_proofs"`
	Versions         map[string]int `json:"versions"`
	StakeRequirement float64        `json:"stake_requirement"`
	BlockReward      float64        `json:"block_reward"`
	MonitoredNodes   int64          `json:"monitored_nodes"`
	MonitoredUsers   int64          `json:"monitored_users"`
}

func summarize(snap *models.NetworkSnapshot, calc *rewards.Calculator, now time.Time) NetworkStatus {
	st := NetworkStatus{
		Network:          snap.Name(),
		Height:           snap.Height,
		FetchedAt:        snap.FetchedAt,
		Versions:         make(map[string]int),
		StakeRequirement: calc.StakeRequirement(snap.Height, snap.Testnet),
		BlockReward:      rewards.BlockReward(snap.Height),
	}
	for _, node := range snap.Nodes {
		switch {
		case !node.Staked():
			st.AwaitingStake++
		case node.IsActive():
			st.Active++
		default:
			st.Decommissioned++
		}

		if rewards.InfiniteStake(node, snap.Testnet) {
			if node.RequestedUnlockHeight == 0 {
				st.Infinite++
			} else {
				days := (int64(node.RequestedUnlockHeight) - int64(snap.Height)) / 720
				switch {
				case days < 1:
					st.Unlocking.UnderOneDay++
				case days < 3:
					st.Unlocking.OneToThreeDays++
				case days < 7:
					st.Unlocking.ThreeToSevenDay++
				default:
					st.Unlocking.OverSevenDays++
				}
			}
		}

		if node.LastUptimeProof > 0 && now.Unix()-node.LastUptimeProof > monitor.ProofAgeWarning {
			st.OldProofs++
		}

		version := "unknown"
		if !node.Version.IsZero() {
			version = node.Version.String()
		}
		st.Versions[version]++
	}
	return st
}

// GetStatus handles GET requests for a summary of one network
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	var testnet bool
	switch mux.Vars(r)["network"] {
	case "mainnet":
	case "testnet":
		testnet = true
	default:
		writeError(w, http.StatusNotFound, "unknown network")
		return
	}

	snap := h.Snapshots.Network(testnet)
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "network state not available yet")
		return
	}

	st := summarize(snap, h.Calc, h.now())
	nodes, users, err := h.Repo.MonitoringCounts(r.Context(), testnet)
	if err != nil {
		logger.Logger.Error("Failed to count monitored nodes", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read subscriptions")
		return
	}
	st.MonitoredNodes, st.MonitoredUsers = nodes, users
	writeJSON(w, http.StatusOK, st)
}

// NodeDetails is one registered node plus the values derived from it.
type NodeDetails struct {
	Network        string            `json:"network"`
	Height         uint64            `json:"height"`
	Node           *models.NodeState `json:"node"`
	Staked         bool              `json:"staked"`
	Decommissioned bool              `json:"decommissioned"`
	InfiniteStake  bool              `json:"infinite_stake"`
	OperatorFee    float64           `json:"operator_fee"`
	ProofAge       *int64            `json:"proof_age,omitempty"`
	ExpiryBlock    *uint64           `json:"expiry_block,omitempty"`
	ExpiresIn      *int64            `json:"expires_in,omitempty"`
}

// GetNode handles GET requests for a node's current state on either network
func (h *Handler) GetNode(w http.ResponseWriter, r *http.Request) {
	pubkey := mux.Vars(r)["pubkey"]
	for _, testnet := range []bool{false, true} {
		snap := h.Snapshots.Network(testnet)
		node := snap.Node(pubkey)
		if node == nil {
			continue
		}
		details := NodeDetails{
			Network:        snap.Name(),
			Height:         snap.Height,
			Node:           node,
			Staked:         node.Staked(),
			Decommissioned: node.Decommissioned(),
			InfiniteStake:  rewards.InfiniteStake(node, testnet),
			OperatorFee:    rewards.OperatorFee(node),
		}
		if node.LastUptimeProof > 0 {
			details.ProofAge = models.Ptr(h.now().Unix() - node.LastUptimeProof)
		}
		if expiry, ok := rewards.ExpiryBlock(node, testnet); ok {
			details.ExpiryBlock = models.Ptr(expiry)
			details.ExpiresIn = models.Ptr(rewards.ExpiresIn(expiry, snap.Height))
		}
		writeJSON(w, http.StatusOK, details)
		return
	}
	writeError(w, http.StatusNotFound, "service node is not registered")
}

// Health handles liveness probes
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"status": "ok"}
	if snap := h.Snapshots.Network(false); snap != nil {
		resp["height"] = snap.Height
		resp["fetched_at"] = snap.FetchedAt
	}
	writeJSON(w, http.StatusOK, resp)
}
