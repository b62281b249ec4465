package routers

import (
	"net/http"

	"github.com/gorilla/mux"

	"snwatch/handlers"
)

// RegisterRoutes sets up all the HTTP routes for the watch API. metrics may be nil.
func RegisterRoutes(r *mux.Router, h *handlers.Handler, metrics http.Handler) {

	// Network summary: node counts, unlocks, versions, stake requirement and reward
	r.HandleFunc("/status/{network:mainnet|testnet}", h.GetStatus).Methods("GET")

	// Current state of one registered node on either network
	r.HandleFunc("/nodes/{pubkey}", h.GetNode).Methods("GET")

	r.HandleFunc("/users", h.CreateUser).Methods("POST")

	// Start, list and stop monitoring service nodes
	r.HandleFunc("/users/{uid:[0-9]+}/subscriptions", h.AddSubscription).Methods("POST")
	r.HandleFunc("/users/{uid:[0-9]+}/subscriptions", h.ListSubscriptions).Methods("GET")
	r.HandleFunc("/users/{uid:[0-9]+}/subscriptions/{pubkey}", h.RemoveSubscription).Methods("DELETE")

	// Wallet prefixes used for reward shares and auto-monitoring
	r.HandleFunc("/users/{uid:[0-9]+}/wallets", h.AddWallet).Methods("POST")
	r.HandleFunc("/users/{uid:[0-9]+}/unmonitored", h.AddUnmonitored).Methods("POST")

	r.HandleFunc("/healthz", h.Health).Methods("GET")
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods("GET")
	}
}
