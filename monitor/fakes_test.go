package monitor_test

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"snwatch/models"
	"snwatch/notify"
	"snwatch/repository"
	"snwatch/snapshot"
)

// memRepo is an in-memory subscription store.
type memRepo struct {
	mu       sync.Mutex
	subs     map[uint]*models.Subscription
	wallets  map[uint][]string
	updates  int
	listed   int
	failList error
}

func newMemRepo(subs ...*models.Subscription) *memRepo {
	r := &memRepo{subs: make(map[uint]*models.Subscription), wallets: make(map[uint][]string)}
	for _, s := range subs {
		r.subs[s.ID] = s
	}
	return r
}

func (r *memRepo) get(id uint) models.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.subs[id]
}

func (r *memRepo) ActiveSubscriptions(ctx context.Context) ([]*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listed++
	if r.failList != nil {
		return nil, r.failList
	}
	out := make([]*models.Subscription, 0, len(r.subs))
	for _, s := range r.subs {
		c := *s
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) UpdateSubscription(ctx context.Context, sub *models.Subscription, patch models.SubscriptionPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.subs[sub.ID]
	if !ok {
		return repository.ErrNotFound
	}
	r.updates++
	patch.Apply(stored)
	patch.Apply(sub)
	return nil
}

func (r *memRepo) WalletPrefixes(ctx context.Context, userID uint) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.wallets[userID], nil
}

func (r *memRepo) DeleteUserSubscriptions(ctx context.Context, userID uint) error {
	return errors.New("not implemented")
}

func (r *memRepo) CreateUser(ctx context.Context, user *models.User) error {
	return errors.New("not implemented")
}

func (r *memRepo) GetUser(ctx context.Context, id uint) (*models.User, error) {
	return nil, repository.ErrNotFound
}

func (r *memRepo) AddSubscription(ctx context.Context, sub *models.Subscription) error {
	return errors.New("not implemented")
}

func (r *memRepo) RemoveSubscription(ctx context.Context, userID uint, pubkey string) error {
	return errors.New("not implemented")
}

func (r *memRepo) ListSubscriptions(ctx context.Context, userID uint) ([]*models.Subscription, error) {
	return nil, nil
}

func (r *memRepo) AddWalletPrefix(ctx context.Context, userID uint, wallet string) error {
	return errors.New("not implemented")
}

func (r *memRepo) MonitoringCounts(ctx context.Context, testnet bool) (int64, int64, error) {
	return 0, 0, nil
}

type plainFormatter struct{}

func (plainFormatter) FormatBold(s string) string   { return s }
func (plainFormatter) FormatItalic(s string) string { return s }
func (plainFormatter) Escape(s string) string       { return s }

type sentMessage struct {
	pubkey   string
	text     string
	isUpdate bool
}

type fakeNotifier struct {
	fail      bool
	panicOn   string
	formatter notify.Formatter
	sent      []sentMessage
}

func (n *fakeNotifier) Notify(ctx context.Context, sub *models.Subscription, msg notify.Message, isUpdate bool) bool {
	if n.panicOn != "" && sub.Pubkey == n.panicOn {
		panic("backend exploded")
	}
	if n.fail {
		return false
	}
	var f notify.Formatter = plainFormatter{}
	if n.formatter != nil {
		f = n.formatter
	}
	n.sent = append(n.sent, sentMessage{pubkey: sub.Pubkey, text: msg(f), isUpdate: isUpdate})
	return true
}

func (n *fakeNotifier) texts() []string {
	out := make([]string, len(n.sent))
	for i, m := range n.sent {
		out[i] = m.text
	}
	return out
}

func (n *fakeNotifier) reset() {
	n.sent = nil
}

func (n *fakeNotifier) anyContains(substr string) bool {
	for _, m := range n.sent {
		if strings.Contains(m.text, substr) {
			return true
		}
	}
	return false
}

type fakeFetcher struct {
	snaps snapshot.Snapshots
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context) (snapshot.Snapshots, error) {
	f.calls++
	if f.err != nil {
		return snapshot.Snapshots{}, f.err
	}
	return f.snaps, nil
}

type recordingPublisher struct {
	published []snapshot.Snapshots
}

func (p *recordingPublisher) Publish(snaps snapshot.Snapshots) {
	p.published = append(p.published, snaps)
}
