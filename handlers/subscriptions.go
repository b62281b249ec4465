package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"snwatch/logger"
	"snwatch/models"
	"snwatch/repository"
)

// MinWalletPrefixLength is the shortest wallet prefix accepted for reward shares.
const MinWalletPrefixLength = 9

var pubkeyPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// userFromPath loads the user named by the {uid} route variable, writing the
// error response itself when that fails.
func (h *Handler) userFromPath(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["uid"], 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return nil, false
	}
	user, err := h.Repo.GetUser(r.Context(), uint(id))
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return nil, false
	}
	if err != nil {
		logger.Logger.Error("Failed to load user", zap.Uint64("user_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return nil, false
	}
	return user, true
}

type createUserRequest struct {
	TelegramID  *int64  `json:"telegram_id"`
	DiscordID   *string `json:"discord_id"`
	AutoMonitor bool    `json:"auto_monitor"`
}

// CreateUser handles POST requests registering a messaging identity
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Logger.Error("Failed to decode user", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.TelegramID == nil && (req.DiscordID == nil || *req.DiscordID == "") {
		writeError(w, http.StatusBadRequest, "telegram_id or discord_id is required")
		return
	}

	user := &models.User{TelegramID: req.TelegramID, DiscordID: req.DiscordID, AutoMonitor: req.AutoMonitor}
	if err := h.Repo.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			writeError(w, http.StatusConflict, "user already exists")
			return
		}
		logger.Logger.Error("Failed to create user", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "User created successfully",
		"user":    user,
	})
}

type addSubscriptionRequest struct {
	Pubkey      string  `json:"pubkey"`
	Testnet     bool    `json:"testnet"`
	Alias       *string `json:"alias"`
	Rewards     bool    `json:"rewards"`
	ExpiresSoon bool    `json:"expires_soon"`
}

// newSubscription seeds the notification state from the node's current
// state so that only later changes are reported.
func (h *Handler) newSubscription(userID uint, pubkey string, testnet bool) (*models.Subscription, bool) {
	sub := &models.Subscription{UserID: userID, Pubkey: pubkey, Testnet: testnet}

	node := h.Snapshots.Network(testnet).Node(pubkey)
	if node == nil {
		if other := h.Snapshots.Network(!testnet).Node(pubkey); other != nil {
			sub.Testnet, node = !testnet, other
		}
	}
	if node == nil {
		// Not registered yet: no deregistration notice until it has been seen.
		sub.NotifiedDereg = true
		return sub, false
	}

	sub.Active = !node.Decommissioned()
	sub.NotifiedDereg = !sub.Active
	sub.Complete = node.Staked()
	sub.LastRewardBlockHeight = models.Ptr(node.LastRewardBlockHeight)
	if !node.Version.IsZero() {
		sub.LastVersion = models.Ptr(node.Version)
	}
	return sub, true
}

// AddSubscription handles POST requests to start monitoring a node
func (h *Handler) AddSubscription(w http.ResponseWriter, r *http.Request) {
	user, ok := h.userFromPath(w, r)
	if !ok {
		return
	}
	var req addSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Logger.Error("Failed to decode subscription", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	pubkey := strings.ToLower(strings.TrimSpace(req.Pubkey))
	if !pubkeyPattern.MatchString(pubkey) {
		writeError(w, http.StatusBadRequest, "pubkey must be 64 hex characters")
		return
	}

	sub, registered := h.newSubscription(user.ID, pubkey, req.Testnet)
	sub.Alias = req.Alias
	sub.Rewards = req.Rewards
	sub.ExpiresSoon = req.ExpiresSoon

	if err := h.Repo.AddSubscription(r.Context(), sub); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			writeError(w, http.StatusConflict, "already monitoring this service node")
			return
		}
		logger.Logger.Error("Failed to add subscription", zap.String("pubkey", pubkey), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to add subscription")
		return
	}

	logger.Logger.Info("Started monitoring", zap.Uint("user_id", user.ID), zap.String("pubkey", pubkey), zap.Bool("registered", registered))
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":      "Subscription added successfully",
		"registered":   registered,
		"subscription": sub,
	})
}

// ListSubscriptions handles GET requests for a user's monitored nodes
func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	user, ok := h.userFromPath(w, r)
	if !ok {
		return
	}
	subs, err := h.Repo.ListSubscriptions(r.Context(), user.ID)
	if err != nil {
		logger.Logger.Error("Failed to list subscriptions", zap.Uint("user_id", user.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"subscriptions": subs})
}

// RemoveSubscription handles DELETE requests to stop monitoring a node
func (h *Handler) RemoveSubscription(w http.ResponseWriter, r *http.Request) {
	user, ok := h.userFromPath(w, r)
	if !ok {
		return
	}
	pubkey := strings.ToLower(mux.Vars(r)["pubkey"])
	err := h.Repo.RemoveSubscription(r.Context(), user.ID, pubkey)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not monitoring this service node")
		return
	}
	if err != nil {
		logger.Logger.Error("Failed to remove subscription", zap.String("pubkey", pubkey), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to remove subscription")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Subscription removed"})
}

type addWalletRequest struct {
	Wallet string `json:"wallet"`
}

// AddWallet handles POST requests to register a wallet prefix for reward shares
func (h *Handler) AddWallet(w http.ResponseWriter, r *http.Request) {
	user, ok := h.userFromPath(w, r)
	if !ok {
		return
	}
	var req addWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Logger.Error("Failed to decode wallet", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	wallet := strings.TrimSpace(req.Wallet)
	if len(wallet) < MinWalletPrefixLength {
		writeError(w, http.StatusBadRequest, "wallet prefix is too short")
		return
	}
	if err := h.Repo.AddWalletPrefix(r.Context(), user.ID, wallet); err != nil {
		logger.Logger.Error("Failed to add wallet", zap.Uint("user_id", user.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to add wallet")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Wallet added", "wallet": wallet})
}

// AddUnmonitored handles POST requests that start monitoring every registered
// mainnet node one of the user's wallets contributed to
func (h *Handler) AddUnmonitored(w http.ResponseWriter, r *http.Request) {
	user, ok := h.userFromPath(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	wallets, err := h.Repo.WalletPrefixes(ctx, user.ID)
	if err != nil {
		logger.Logger.Error("Failed to load wallets", zap.Uint("user_id", user.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load wallets")
		return
	}
	if len(wallets) == 0 {
		writeError(w, http.StatusBadRequest, "no wallets registered")
		return
	}
	snap := h.Snapshots.Network(false)
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "network state not available yet")
		return
	}

	existing, err := h.Repo.ListSubscriptions(ctx, user.ID)
	if err != nil {
		logger.Logger.Error("Failed to list subscriptions", zap.Uint("user_id", user.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}
	have := make(map[string]bool, len(existing))
	for _, sub := range existing {
		have[sub.Pubkey] = true
	}

	added := []string{}
	for pubkey, node := range snap.Nodes {
		if have[pubkey] || !contributedBy(node, wallets) {
			continue
		}
		sub, _ := h.newSubscription(user.ID, pubkey, false)
		if err := h.Repo.AddSubscription(ctx, sub); err != nil && !errors.Is(err, repository.ErrDuplicate) {
			logger.Logger.Error("Failed to add subscription", zap.String("pubkey", pubkey), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to add subscription")
			return
		}
		added = append(added, pubkey)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"added": added})
}

func contributedBy(node *models.NodeState, wallets []string) bool {
	for _, c := range node.Contributors {
		for _, w := range wallets {
			if strings.HasPrefix(c.Address, w) {
				return true
			}
		}
	}
	return false
}
