package monitor

import (
	"fmt"
	"strings"

	"snwatch/models"
	"snwatch/notify"
	"snwatch/rewards"
)

// FriendlyTime renders a duration in seconds as "2 days 3.5 hours", "42 minutes" etc.
func FriendlyTime(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	var b strings.Builder
	if seconds >= 86400 {
		days := seconds / 86400
		seconds %= 86400
		// "3 days 24.0 hours" reads badly; round up to the next day instead.
		if fmt.Sprintf("%.1f", float64(seconds)/3600) == "24.0" {
			days++
			seconds = 0
		}
		fmt.Fprintf(&b, "%d day%s", days, plural(days))
		if seconds == 0 {
			return b.String()
		}
		b.WriteByte(' ')
	}
	switch {
	case seconds >= 3600:
		fmt.Fprintf(&b, "%.1f hours", float64(seconds)/3600)
	case seconds >= 60:
		fmt.Fprintf(&b, "%.0f minutes", float64(seconds)/60)
	default:
		fmt.Fprintf(&b, "%d seconds", seconds)
	}
	return b.String()
}

// ProofAge renders an uptime proof age as "1h01m40s ago".
func ProofAge(age int64) string {
	if age < 0 {
		age = 0
	}
	hours, minutes, seconds := age/3600, age/60%60, age%60
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh%02dm%02ds ago", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm%02ds ago", minutes, seconds)
	default:
		return fmt.Sprintf("%ds ago", seconds)
	}
}

// MoonSymbol shows how full a node's stake is.
func MoonSymbol(pct float64) string {
	switch {
	case pct < 26:
		return "🌑"
	case pct < 50:
		return "🌒"
	case pct < 75:
		return "🌓"
	case pct < 100:
		return "🌔"
	default:
		return "🌕"
	}
}

func plural[T int | int64](n T) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func coins(atomic uint64) float64 {
	return float64(atomic) / rewards.Coin
}

func name(f notify.Formatter, sub *models.Subscription) string {
	return f.FormatItalic(sub.DisplayName())
}

func deregisteredMessage(sub *models.Subscription, expected bool) notify.Message {
	return func(f notify.Formatter) string {
		if expected {
			return fmt.Sprintf("📅 Service node %s reached the end of its registration period and is no longer registered on the network.", name(f, sub))
		}
		return fmt.Sprintf("🛑 %s Service node %s is no longer registered on the network! 😦", f.FormatBold("UNEXPECTED DEREGISTRATION!"), name(f, sub))
	}
}

func decommissionedMessage(sub *models.Subscription) notify.Message {
	return func(f notify.Formatter) string {
		return fmt.Sprintf("☣ Service node %s has been %s by the network! Check its uptime proofs and connectivity.", name(f, sub), f.FormatBold("DECOMMISSIONED"))
	}
}

func uptimeWarningMessage(sub *models.Subscription, age int64) notify.Message {
	return func(f notify.Formatter) string {
		return fmt.Sprintf("⚠ %s Service node %s last uptime proof is %s", f.FormatBold("WARNING:"), name(f, sub), f.FormatBold(ProofAge(age)))
	}
}

func uptimeRecoveredMessage(sub *models.Subscription, age int64) notify.Message {
	return func(f notify.Formatter) string {
		return fmt.Sprintf("😌 Service node %s last uptime proof received (now %s)", name(f, sub), f.FormatBold(ProofAge(age)))
	}
}

func contributionMessage(sub *models.Subscription, node *models.NodeState, first bool) notify.Message {
	return func(f notify.Formatter) string {
		var pct float64
		if node.StakingRequirement > 0 {
			pct = float64(node.TotalContributed) / float64(node.StakingRequirement) * 100
		}
		var remaining uint64
		if node.StakingRequirement > node.TotalContributed {
			remaining = node.StakingRequirement - node.TotalContributed
		}
		what := "received a contribution."
		if first {
			what = "is awaiting contributions."
		}
		return fmt.Sprintf("%s Service node %s %s  Total contributions: %s (%s of required %s).  Additional contribution required: %s.",
			MoonSymbol(pct), name(f, sub), what,
			f.FormatItalic(fmt.Sprintf("%.9f", coins(node.TotalContributed))),
			f.FormatItalic(fmt.Sprintf("%.1f%%", pct)),
			f.FormatItalic(fmt.Sprintf("%.9f", coins(node.StakingRequirement))),
			f.FormatItalic(fmt.Sprintf("%.9f", coins(remaining))))
	}
}

func fullyStakedMessage(sub *models.Subscription) notify.Message {
	return func(f notify.Formatter) string {
		return fmt.Sprintf("💚 Service node %s is now fully staked and active!", name(f, sub))
	}
}

func unlockMessage(sub *models.Subscription, unlockHeight uint64, expiresIn int64) notify.Message {
	return func(f notify.Formatter) string {
		return fmt.Sprintf("🔓 Service node %s has started a stake unlock and will leave the network at block %s (approx. %s).",
			name(f, sub), f.FormatBold(fmt.Sprint(unlockHeight)), FriendlyTime(expiresIn))
	}
}

func obsoleteMessage(sub *models.Subscription, running, minimum models.Version) notify.Message {
	return func(f notify.Formatter) string {
		return fmt.Sprintf("⚠ Service node %s is running %s, which is obsolete. Please upgrade to %s or newer!",
			name(f, sub), f.FormatBold("v"+running.String()), f.FormatBold("v"+minimum.String()))
	}
}

func upgradedPastMinimumMessage(sub *models.Subscription, running models.Version) notify.Message {
	return func(f notify.Formatter) string {
		return fmt.Sprintf("💖 Service node %s is now running %s. Thanks for upgrading!", name(f, sub), f.FormatBold("v"+running.String()))
	}
}

func versionChangedMessage(sub *models.Subscription, from, to models.Version) notify.Message {
	return func(f notify.Formatter) string {
		if from.Less(to) {
			return fmt.Sprintf("⬆ Service node %s upgraded from v%s to %s", name(f, sub), from, f.FormatBold("v"+to.String()))
		}
		return fmt.Sprintf("⬇ Service node %s downgraded from v%s to %s", name(f, sub), from, f.FormatBold("v"+to.String()))
	}
}

func expiryMessage(sub *models.Subscription, expiry uint64, expiresIn int64) notify.Message {
	return func(f notify.Formatter) string {
		return fmt.Sprintf("⏱ Service node %s registration expires in about %s (block %s)",
			name(f, sub), FriendlyTime(expiresIn), f.FormatItalic(fmt.Sprint(expiry)))
	}
}

func rewardMessage(sub *models.Subscription, reward float64, height uint64, shares []rewards.Share) notify.Message {
	return func(f notify.Formatter) string {
		msg := fmt.Sprintf("💰 Service node %s earned a reward of %s at height %s.",
			name(f, sub), f.FormatBold(fmt.Sprintf("%.3f", reward)), f.FormatBold(fmt.Sprint(height)))
		if len(shares) == 0 {
			return msg
		}
		parts := make([]string, 0, len(shares))
		for _, s := range shares {
			parts = append(parts, fmt.Sprintf("%s (%s)", f.FormatBold(fmt.Sprintf("%.3f", s.Amount)), f.FormatItalic(shortAddress(s.Address))))
		}
		return msg + "  Your share: " + strings.Join(parts, ", ")
	}
}

func shortAddress(addr string) string {
	if len(addr) < 11 {
		return addr
	}
	return addr[:7] + "..." + addr[len(addr)-3:]
}
