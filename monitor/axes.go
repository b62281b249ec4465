package monitor

import (
	"context"
	"time"

	"snwatch/models"
	"snwatch/notify"
	"snwatch/rewards"
)

// evaluation is one subscription checked against one snapshot. Each check
// persists its state change only after the user was told about it, so an
// undelivered message is retried on the next tick.
type evaluation struct {
	engine *Engine
	ctx    context.Context
	sub    *models.Subscription
	snap   *models.NetworkSnapshot
	node   *models.NodeState
	now    time.Time

	justCompleted bool
}

func (ev *evaluation) run() error {
	if stop, err := ev.deregistration(); stop || err != nil {
		return err
	}
	checks := []func() error{
		ev.uptime,
		ev.stake,
		ev.unlock,
		ev.version,
		ev.expiry,
		ev.reward,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (ev *evaluation) send(axis string, msg notify.Message, isUpdate bool) bool {
	delivered := ev.engine.notifier.Notify(ev.ctx, ev.sub, msg, isUpdate)
	ev.engine.metrics.notified(axis, delivered)
	return delivered
}

func (ev *evaluation) save(patch models.SubscriptionPatch) error {
	return ev.engine.repo.UpdateSubscription(ev.ctx, ev.sub, patch)
}

// notifyThenSave sends msg and, once delivered, stores patch.
func (ev *evaluation) notifyThenSave(axis string, msg notify.Message, patch models.SubscriptionPatch) (bool, error) {
	if !ev.send(axis, msg, true) {
		return false, nil
	}
	return true, ev.save(patch)
}

// deregistration reports stop=true when the node is gone or decommissioned,
// in which case nothing else is checked.
func (ev *evaluation) deregistration() (stop bool, err error) {
	sub, node := ev.sub, ev.node
	if node != nil && !node.Decommissioned() {
		if !sub.Active || sub.NotifiedDereg {
			return false, ev.save(models.SubscriptionPatch{
				Active:        models.Some(true),
				NotifiedDereg: models.Some(false),
			})
		}
		return false, nil
	}

	if !sub.Active && sub.NotifiedDereg {
		return true, nil
	}
	var msg notify.Message
	if node == nil {
		msg = deregisteredMessage(sub, ev.engine.expiries.Expected(ev.snap.Testnet, sub.Pubkey, ev.snap.Height))
	} else {
		msg = decommissionedMessage(sub)
	}
	_, err = ev.notifyThenSave("deregistration", msg, models.SubscriptionPatch{
		Active:            models.Some(false),
		NotifiedDereg:     models.Some(true),
		Complete:          models.Some(false),
		LastContributions: models.Some(models.Ptr[uint64](0)),
		ExpiryNotified:    models.Some[*int](nil),
	})
	return true, err
}

func (ev *evaluation) uptime() error {
	sub, node := ev.sub, ev.node
	if node.LastUptimeProof <= 0 {
		return nil
	}
	age := ev.now.Unix() - node.LastUptimeProof
	if age >= ProofAgeWarning {
		if sub.NotifiedAge == nil || age-*sub.NotifiedAge > ProofAgeRepeat {
			_, err := ev.notifyThenSave("uptime", uptimeWarningMessage(sub, age), models.SubscriptionPatch{
				NotifiedAge: models.Some(models.Ptr(age)),
			})
			return err
		}
		return nil
	}
	if sub.NotifiedAge != nil {
		_, err := ev.notifyThenSave("uptime", uptimeRecoveredMessage(sub, age), models.SubscriptionPatch{
			NotifiedAge: models.Some[*int64](nil),
		})
		return err
	}
	return nil
}

func (ev *evaluation) stake() error {
	sub, node := ev.sub, ev.node
	if sub.Complete {
		return nil
	}
	if sub.LastContributions == nil || *sub.LastContributions < node.TotalContributed {
		msg := contributionMessage(sub, node, sub.LastContributions == nil)
		if _, err := ev.notifyThenSave("stake", msg, models.SubscriptionPatch{
			LastContributions: models.Some(models.Ptr(node.TotalContributed)),
		}); err != nil {
			return err
		}
	}
	if node.Staked() {
		ev.justCompleted = true
		_, err := ev.notifyThenSave("stake", fullyStakedMessage(sub), models.SubscriptionPatch{
			Complete: models.Some(true),
		})
		return err
	}
	return nil
}

func (ev *evaluation) unlock() error {
	sub, node := ev.sub, ev.node
	if !rewards.InfiniteStake(node, ev.snap.Testnet) {
		return nil
	}
	if node.RequestedUnlockHeight == 0 {
		if sub.UnlockNotified || sub.RequestedUnlockHeight != nil {
			return ev.save(models.SubscriptionPatch{
				UnlockNotified:        models.Some(false),
				RequestedUnlockHeight: models.Some[*uint64](nil),
			})
		}
		return nil
	}
	if sub.UnlockNotified {
		return nil
	}
	unlockAt := node.RequestedUnlockHeight
	_, err := ev.notifyThenSave("unlock", unlockMessage(sub, unlockAt, rewards.ExpiresIn(unlockAt, ev.snap.Height)), models.SubscriptionPatch{
		UnlockNotified:        models.Some(true),
		RequestedUnlockHeight: models.Some(models.Ptr(unlockAt)),
	})
	return err
}

func (ev *evaluation) version() error {
	sub, node := ev.sub, ev.node
	running := node.Version
	if running.IsZero() {
		return nil
	}

	minimum := ev.engine.cfg.MinVersion
	if !minimum.IsZero() && running.Less(minimum) {
		repeat := int64(ev.engine.cfg.ObsoleteRepeat / time.Second)
		if sub.NotifiedObsolete == nil || ev.now.Unix()-*sub.NotifiedObsolete >= repeat {
			if _, err := ev.notifyThenSave("version", obsoleteMessage(sub, running, minimum), models.SubscriptionPatch{
				NotifiedObsolete: models.Some(models.Ptr(ev.now.Unix())),
			}); err != nil {
				return err
			}
		}
	} else if sub.NotifiedObsolete != nil {
		if _, err := ev.notifyThenSave("version", upgradedPastMinimumMessage(sub, running), models.SubscriptionPatch{
			NotifiedObsolete: models.Some[*int64](nil),
		}); err != nil {
			return err
		}
	}

	if sub.LastVersion == nil || sub.LastVersion.IsZero() {
		return ev.save(models.SubscriptionPatch{LastVersion: models.Some(models.Ptr(running))})
	}
	previous := *sub.LastVersion
	if previous.Compare(running) == 0 {
		return nil
	}
	_, err := ev.notifyThenSave("version", versionChangedMessage(sub, previous, running), models.SubscriptionPatch{
		LastVersion: models.Some(models.Ptr(running)),
	})
	return err
}

func (ev *evaluation) expiry() error {
	sub, node := ev.sub, ev.node
	if !sub.ExpiresSoon {
		return nil
	}
	expiry, ok := rewards.ExpiryBlock(node, ev.snap.Testnet)
	if !ok {
		if sub.ExpiryNotified != nil {
			return ev.save(models.SubscriptionPatch{ExpiryNotified: models.Some[*int](nil)})
		}
		return nil
	}

	expiresIn := rewards.ExpiresIn(expiry, ev.snap.Height)
	threshold, matched := finestThreshold(ev.engine.expiryThresholds(ev.snap.Testnet), expiresIn)
	if !matched {
		if sub.ExpiryNotified != nil {
			return ev.save(models.SubscriptionPatch{ExpiryNotified: models.Some[*int](nil)})
		}
		return nil
	}
	if sub.ExpiryNotified != nil && *sub.ExpiryNotified <= threshold {
		return nil
	}
	_, err := ev.notifyThenSave("expiry", expiryMessage(sub, expiry, expiresIn), models.SubscriptionPatch{
		ExpiryNotified: models.Some(models.Ptr(threshold)),
	})
	return err
}

// finestThreshold returns the smallest threshold (in hours) that expiresIn
// seconds falls within. thresholds is descending.
func finestThreshold(thresholds []int, expiresIn int64) (int, bool) {
	found, matched := 0, false
	for _, hours := range thresholds {
		if expiresIn <= int64(hours)*3600 {
			found, matched = hours, true
		}
	}
	return found, matched
}

func (ev *evaluation) reward() error {
	sub, node := ev.sub, ev.node
	height := node.LastRewardBlockHeight
	advance := models.SubscriptionPatch{LastRewardBlockHeight: models.Some(models.Ptr(height))}

	if sub.LastRewardBlockHeight == nil {
		return ev.save(advance)
	}
	if height <= *sub.LastRewardBlockHeight {
		return nil
	}
	if !sub.Rewards || ev.justCompleted || !node.Staked() {
		return ev.save(advance)
	}

	reward := rewards.BlockReward(height)
	var shares []rewards.Share
	if len(node.Contributors) > 1 {
		wallets, err := ev.engine.repo.WalletPrefixes(ev.ctx, sub.UserID)
		if err != nil {
			return err
		}
		shares = rewards.MyShare(node, reward, wallets)
	}
	if ev.send("reward", rewardMessage(sub, reward, height, shares), false) {
		return ev.save(advance)
	}
	return nil
}
