// Package rpc exposes the bridge daemon's HTTP surface: a JSON status
// endpoint and a websocket event feed.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/psy-protocol/doge-bridge/internal/bridge"
	"github.com/psy-protocol/doge-bridge/pkg/logging"
)

// StateProvider hands the server the current bridge state.
type StateProvider interface {
	BridgeState() (*bridge.State, error)
}

// Server serves /status and /ws.
type Server struct {
	provider StateProvider
	log      *logging.Logger
	wsHub    *WSHub

	server   *http.Server
	listener net.Listener
}

// NewServer creates the HTTP server over a state provider.
func NewServer(provider StateProvider) *Server {
	return &Server{
		provider: provider,
		log:      logging.GetDefault().Component("rpc"),
	}
}

// Status is the JSON shape of GET /status.
type Status struct {
	TipHeight       uint32 `json:"tip_height"`
	FinalizedHeight uint32 `json:"finalized_height"`
	FinalizedHash   string `json:"finalized_hash"`

	AutoClaimedDepositsNextIndex uint64 `json:"auto_claimed_deposits_next_index"`
	PendingBlocks                uint32 `json:"pending_blocks"`
	PendingMints                 uint32 `json:"pending_mints"`

	ManualDepositsRoot       string `json:"manual_deposits_root"`
	RequestedWithdrawalsRoot string `json:"requested_withdrawals_root"`
	SentTransactionsRoot     string `json:"sent_transactions_root"`
	SpentTxoRoot             string `json:"spent_txo_root"`

	NextProcessedWithdrawalsIndex uint64 `json:"next_processed_withdrawals_index"`

	TotalRequestedWithdrawalsSats uint64 `json:"total_requested_withdrawals_sats"`
	TotalWithdrawalFeesSats       uint64 `json:"total_withdrawal_fees_sats"`
	TotalManualDepositFeesSats    uint64 `json:"total_manual_deposit_fees_sats"`
	TotalFeesWithdrawnSats        uint64 `json:"total_fees_withdrawn_sats"`
	WithdrawableFeesSats          uint64 `json:"withdrawable_fees_sats"`
}

// StatusOf projects a bridge state into the /status response.
func StatusOf(st *bridge.State) *Status {
	return &Status{
		TipHeight:       st.Header.Tip.BlockHeight,
		FinalizedHeight: st.Header.Finalized.BlockHeight,
		FinalizedHash:   hexutil.Encode(st.Header.Finalized.BlockHash[:]),

		AutoClaimedDepositsNextIndex: st.Header.Finalized.AutoClaimedDepositsNextIndex,
		PendingBlocks:                st.PendingMintTxos.Count - st.PendingMintTxos.CurrentIndex,
		PendingMints:                 st.PendingMintTxos.CurrentPendingMintsTracker.TotalPendingMints,

		ManualDepositsRoot:       hexutil.Encode(st.ManualDepositsTree.Root[:]),
		RequestedWithdrawalsRoot: hexutil.Encode(st.RequestedWithdrawalsTree.Root[:]),
		SentTransactionsRoot:     hexutil.Encode(st.SentTransactionsTree.Root[:]),
		SpentTxoRoot:             hexutil.Encode(st.SpentTxoTreeRoot[:]),

		NextProcessedWithdrawalsIndex: st.NextProcessedWithdrawalsIndex,

		TotalRequestedWithdrawalsSats: st.TotalRequestedWithdrawalsSats,
		TotalWithdrawalFeesSats:       st.TotalWithdrawalFeesSats,
		TotalManualDepositFeesSats:    st.TotalManualDepositFeesSats,
		TotalFeesWithdrawnSats:        st.TotalFeesWithdrawnSats,
		WithdrawableFeesSats:          st.WithdrawableFees(),
	}
}

// Start starts the server on addr.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	s.wsHub = NewWSHub()
	go s.wsHub.Run()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /ws", s.handleWS)

	s.server = &http.Server{
		Handler:      corsMiddleware(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("RPC server error", "error", err)
		}
	}()

	s.log.Info("RPC server started", "addr", addr, "ws", "ws://"+addr+"/ws")
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

// WSHub returns the websocket hub for event broadcasting.
func (s *Server) WSHub() *WSHub {
	return s.wsHub
}

// handleStatus serves the bridge status snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.provider.BridgeState()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(StatusOf(st)); err != nil {
		s.log.Error("Failed to encode status", "error", err)
	}
}

// corsMiddleware adds CORS headers to all responses.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
