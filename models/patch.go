package models

// Opt is a patch field: Set marks the field as part of the update.
type Opt[T any] struct {
	Set bool
	Val T
}

func Some[T any](v T) Opt[T] {
	return Opt[T]{Set: true, Val: v}
}

// SubscriptionPatch names the notification state fields to change on one
// subscription. Nil pointer values write NULL.
type SubscriptionPatch struct {
	Testnet               Opt[bool]
	Active                Opt[bool]
	NotifiedDereg         Opt[bool]
	Complete              Opt[bool]
	LastContributions     Opt[*uint64]
	NotifiedAge           Opt[*int64]
	UnlockNotified        Opt[bool]
	RequestedUnlockHeight Opt[*uint64]
	NotifiedObsolete      Opt[*int64]
	LastVersion           Opt[*Version]
	ExpiryNotified        Opt[*int]
	LastRewardBlockHeight Opt[*uint64]
}

// Columns returns the column/value pairs for the fields in the patch.
func (p SubscriptionPatch) Columns() map[string]any {
	cols := make(map[string]any)
	setColumn(cols, "testnet", p.Testnet)
	setColumn(cols, "active", p.Active)
	setColumn(cols, "notified_dereg", p.NotifiedDereg)
	setColumn(cols, "complete", p.Complete)
	setNullable(cols, "last_contributions", p.LastContributions)
	setNullable(cols, "notified_age", p.NotifiedAge)
	setColumn(cols, "unlock_notified", p.UnlockNotified)
	setNullable(cols, "requested_unlock_height", p.RequestedUnlockHeight)
	setNullable(cols, "notified_obsolete", p.NotifiedObsolete)
	setNullable(cols, "last_version", p.LastVersion)
	setNullable(cols, "expiry_notified", p.ExpiryNotified)
	setNullable(cols, "last_reward_block_height", p.LastRewardBlockHeight)
	return cols
}

func (p SubscriptionPatch) Empty() bool {
	return len(p.Columns()) == 0
}

// Apply copies the patched fields onto s.
func (p SubscriptionPatch) Apply(s *Subscription) {
	apply(&s.Testnet, p.Testnet)
	apply(&s.Active, p.Active)
	apply(&s.NotifiedDereg, p.NotifiedDereg)
	apply(&s.Complete, p.Complete)
	apply(&s.LastContributions, p.LastContributions)
	apply(&s.NotifiedAge, p.NotifiedAge)
	apply(&s.UnlockNotified, p.UnlockNotified)
	apply(&s.RequestedUnlockHeight, p.RequestedUnlockHeight)
	apply(&s.NotifiedObsolete, p.NotifiedObsolete)
	apply(&s.LastVersion, p.LastVersion)
	apply(&s.ExpiryNotified, p.ExpiryNotified)
	apply(&s.LastRewardBlockHeight, p.LastRewardBlockHeight)
}

func setColumn[T any](cols map[string]any, name string, o Opt[T]) {
	if o.Set {
		cols[name] = o.Val
	}
}

func setNullable[T any](cols map[string]any, name string, o Opt[*T]) {
	if !o.Set {
		return
	}
	if o.Val == nil {
		cols[name] = nil
		return
	}
	cols[name] = *o.Val
}

func apply[T any](dst *T, o Opt[T]) {
	if o.Set {
		*dst = o.Val
	}
}
