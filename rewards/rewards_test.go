package rewards_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snwatch/models"
	"snwatch/rewards"
)

func TestExponentialPolicy(t *testing.T) {
	p := rewards.ExponentialPolicy{ForkHeight: rewards.DefaultForkHeight}

	// At the curve's reference height the decay term is exactly 1.
	assert.InDelta(t, 45000, p.Requirement(101250), 1e-6)

	before := p.Requirement(rewards.DefaultForkHeight - 1)
	after := p.Requirement(rewards.DefaultForkHeight)
	assert.Greater(t, before, after, "post-fork curve starts lower")

	// Both curves approach their floor.
	assert.InDelta(t, 15000, p.Requirement(50_000_000), 1)
	assert.InDelta(t, 10000, rewards.ExponentialPolicy{ForkHeight: 1 << 62}.Requirement(50_000_000), 1)
}

func TestBreakpointPolicy(t *testing.T) {
	p := rewards.NewBreakpointPolicy([]rewards.Breakpoint{
		{Height: 300, Amount: 10000},
		{Height: 100, Amount: 30000},
		{Height: 200, Amount: 20000},
	})

	tests := []struct {
		height uint64
		want   float64
	}{
		{0, 30000},
		{100, 30000},
		{150, 25000},
		{200, 20000},
		{275, 12500},
		{300, 10000},
		{10_000, 10000},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, p.Requirement(tt.height), 1e-9, "height %d", tt.height)
	}

	assert.Equal(t, 0.0, rewards.BreakpointPolicy{}.Requirement(5))
}

func TestCalculatorTestnet(t *testing.T) {
	c := rewards.NewCalculator(nil, 0)
	assert.Equal(t, float64(rewards.DefaultTestnetRequirement), c.StakeRequirement(999_999, true))
	assert.InDelta(t, 45000, c.StakeRequirement(101250, false), 1e-6)
}

func TestBlockReward(t *testing.T) {
	assert.InDelta(t, 64, rewards.BlockReward(0), 1e-9)
	assert.InDelta(t, 39, rewards.BlockReward(64800), 1e-9)
	assert.InDelta(t, 14, rewards.BlockReward(100_000_000), 1e-6)
}

func TestOperatorFee(t *testing.T) {
	solo := &models.NodeState{PortionsForOperator: rewards.MaxOperatorPortions}
	assert.InDelta(t, 1.0, rewards.OperatorFee(solo), 1e-9)

	shared := &models.NodeState{PortionsForOperator: rewards.MaxOperatorPortions / 10}
	assert.InDelta(t, 0.1, rewards.OperatorFee(shared), 1e-9)

	assert.Equal(t, 0.0, rewards.OperatorFee(&models.NodeState{}))
}

func TestMyShare(t *testing.T) {
	node := &models.NodeState{
		OperatorAddress:     "LOperator111",
		StakingRequirement:  100 * rewards.Coin,
		PortionsForOperator: rewards.MaxOperatorPortions / 10,
		Contributors: []models.Contributor{
			{Address: "LOperator111", Amount: 25 * rewards.Coin},
			{Address: "LFriend2222", Amount: 75 * rewards.Coin},
		},
	}

	shares := rewards.MyShare(node, 20, []string{"LOper"})
	require.Len(t, shares, 1)
	// 10% operator cut of 20 = 2; 25% of the remaining 18 = 4.5; plus the cut.
	assert.InDelta(t, 6.5, shares[0].Amount, 1e-9)
	assert.Equal(t, "LOperator111", shares[0].Address)

	shares = rewards.MyShare(node, 20, []string{"LFriend", "LOperator"})
	require.Len(t, shares, 2)
	assert.InDelta(t, 13.5, shares[1].Amount, 1e-9)

	assert.Empty(t, rewards.MyShare(node, 20, []string{"LNobody"}))
	assert.Empty(t, rewards.MyShare(node, 20, nil))
}

func TestExpiryBlock(t *testing.T) {
	finite := &models.NodeState{RegistrationHeight: 1000}
	expiry, ok := rewards.ExpiryBlock(finite, false)
	require.True(t, ok)
	assert.Equal(t, uint64(1000+rewards.StakeBlocks), expiry)
	assert.False(t, rewards.InfiniteStake(finite, false))

	infinite := &models.NodeState{RegistrationHeight: rewards.InfiniteFrom + 5}
	_, ok = rewards.ExpiryBlock(infinite, false)
	assert.False(t, ok)

	infinite.RequestedUnlockHeight = 300_000
	expiry, ok = rewards.ExpiryBlock(infinite, false)
	require.True(t, ok)
	assert.Equal(t, uint64(300_000), expiry)

	// Testnet is always infinite.
	assert.True(t, rewards.InfiniteStake(&models.NodeState{RegistrationHeight: 1}, true))

	assert.Equal(t, int64(120), rewards.ExpiresIn(100, 100))
	assert.Equal(t, int64(-120), rewards.ExpiresIn(100, 102))
}
