package rewards

import (
	"math"
	"sort"
	"strings"

	"snwatch/models"
)

const (
	// Coin is the number of atomic units in one coin.
	Coin = 1_000_000_000
	// MaxOperatorPortions is the portions value meaning 100% of the reward.
	MaxOperatorPortions = 18446744073709551612
	// AverageBlockSeconds is the target block time.
	AverageBlockSeconds = 120
	// StakeBlocks is the registration length of a finite stake.
	StakeBlocks        = 720*30 + 20
	TestnetStakeBlocks = 720*2 + 20
	// InfiniteFrom is the first registration height using unlimited staking.
	InfiniteFrom        = 234767
	TestnetInfiniteFrom = 1

	DefaultForkHeight         = 235987
	DefaultTestnetRequirement = 100
)

// StakePolicy computes the mainnet stake requirement (in coins) for a height.
type StakePolicy interface {
	Requirement(height uint64) float64
}

// ExponentialPolicy decays toward a floor, switching curves at ForkHeight.
type ExponentialPolicy struct {
	ForkHeight uint64
}

func (p ExponentialPolicy) Requirement(height uint64) float64 {
	decay := math.Pow(2, (101250-float64(height))/129600)
	if height >= p.ForkHeight {
		return 15000 + 24721*decay
	}
	return 10000 + 35000*decay
}

// Breakpoint is one (height, amount) point of a stake requirement table.
type Breakpoint struct {
	Height uint64
	Amount float64
}

// BreakpointPolicy linearly interpolates between table entries and clamps
// to the first/last amount outside the table.
type BreakpointPolicy struct {
	Points []Breakpoint
}

// NewBreakpointPolicy returns a policy over points sorted by height.
func NewBreakpointPolicy(points []Breakpoint) BreakpointPolicy {
	sorted := append([]Breakpoint(nil), points...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Height < sorted[j].Height })
	return BreakpointPolicy{Points: sorted}
}

func (p BreakpointPolicy) Requirement(height uint64) float64 {
	pts := p.Points
	if len(pts) == 0 {
		return 0
	}
	if height <= pts[0].Height {
		return pts[0].Amount
	}
	last := pts[len(pts)-1]
	if height >= last.Height {
		return last.Amount
	}
	i := sort.Search(len(pts), func(i int) bool { return pts[i].Height > height })
	lo, hi := pts[i-1], pts[i]
	span := float64(hi.Height - lo.Height)
	w := float64(height-lo.Height) / span
	return lo.Amount*(1-w) + hi.Amount*w
}

// Calculator answers stake and reward questions for both networks.
type Calculator struct {
	Policy             StakePolicy
	TestnetRequirement float64
}

// NewCalculator defaults to the exponential mainnet policy.
func NewCalculator(policy StakePolicy, testnetRequirement float64) *Calculator {
	if policy == nil {
		policy = ExponentialPolicy{ForkHeight: DefaultForkHeight}
	}
	if testnetRequirement <= 0 {
		testnetRequirement = DefaultTestnetRequirement
	}
	return &Calculator{Policy: policy, TestnetRequirement: testnetRequirement}
}

// StakeRequirement returns the stake (in coins) a node registering at height must lock.
func (c *Calculator) StakeRequirement(height uint64, testnet bool) float64 {
	if testnet {
		return c.TestnetRequirement
	}
	return c.Policy.Requirement(height)
}

// BlockReward is the service node reward (in coins) paid at height.
func BlockReward(height uint64) float64 {
	return 14 + 50*math.Pow(2, -float64(height)/64800)
}

// OperatorFee is the operator's cut of each reward, as a fraction in [0,1].
func OperatorFee(node *models.NodeState) float64 {
	fee := float64(node.PortionsForOperator) / MaxOperatorPortions
	return math.Max(0, math.Min(1, fee))
}

// Share is one wallet's part of a reward, in coins.
type Share struct {
	Amount  float64
	Address string
}

// MyShare splits reward among the contributors whose address starts with one of
// walletPrefixes. The operator's own contribution also earns the operator cut.
func MyShare(node *models.NodeState, reward float64, walletPrefixes []string) []Share {
	if node.StakingRequirement == 0 {
		return nil
	}
	operatorCut := reward * OperatorFee(node)
	var shares []Share
	for _, c := range node.Contributors {
		if !hasAnyPrefix(c.Address, walletPrefixes) {
			continue
		}
		amount := (reward - operatorCut) * float64(c.Amount) / float64(node.StakingRequirement)
		if c.Address == node.OperatorAddress {
			amount += operatorCut
		}
		shares = append(shares, Share{Amount: amount, Address: c.Address})
	}
	return shares
}

func hasAnyPrefix(address string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(address, p) {
			return true
		}
	}
	return false
}

// InfiniteStake reports whether a node registered at height uses unlimited staking.
func InfiniteStake(node *models.NodeState, testnet bool) bool {
	if testnet {
		return node.RegistrationHeight >= TestnetInfiniteFrom
	}
	return node.RegistrationHeight >= InfiniteFrom
}

// ExpiryBlock returns the height at which the node's registration ends. An
// infinitely staked node without an unlock request has none.
func ExpiryBlock(node *models.NodeState, testnet bool) (uint64, bool) {
	if InfiniteStake(node, testnet) {
		if node.RequestedUnlockHeight == 0 {
			return 0, false
		}
		return node.RequestedUnlockHeight, true
	}
	if testnet {
		return node.RegistrationHeight + TestnetStakeBlocks, true
	}
	return node.RegistrationHeight + StakeBlocks, true
}

// ExpiresIn estimates the seconds until expiry from height. Negative once passed.
func ExpiresIn(expiry, height uint64) int64 {
	return (int64(expiry) - int64(height) + 1) * AverageBlockSeconds
}

// BlocksToSeconds converts a block count to an approximate duration in seconds.
func BlocksToSeconds(blocks int64) int64 {
	return blocks * AverageBlockSeconds
}
