package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/swap-coordinator/pkg/app/errors"
	apphttp "github.com/chainsafe/swap-coordinator/pkg/app/http"
	"github.com/chainsafe/swap-coordinator/pkg/asset"
	"github.com/chainsafe/swap-coordinator/pkg/auth"
	"github.com/chainsafe/swap-coordinator/pkg/coordinator"
	"github.com/chainsafe/swap-coordinator/pkg/notify"
	"github.com/chainsafe/swap-coordinator/pkg/quote"
	"github.com/chainsafe/swap-coordinator/pkg/swap"
	"github.com/chainsafe/swap-coordinator/pkg/swapstore"
)

const (
	maxBodySize          = 1 << 20
	defaultLimit         = 50
	maxLimit             = 500
	defaultAcceptTimeout = 5 * time.Minute
)

// Quoter prices swaps.
type Quoter interface {
	GetQuote(ctx context.Context, req quote.Request) (*swap.Quote, error)
	MinAmount(ctx context.Context, req quote.Request) decimal.Decimal
}

// Store reads swap records.
type Store interface {
	GetSwap(ctx context.Context, id string) (*swap.Record, error)
	ListSwaps(ctx context.Context, opts ...swapstore.ListOption) ([]*swap.Record, error)
}

// Tracker drives accepted swaps in the background.
type Tracker interface {
	Track(rec *swap.Record) bool
	Abort(id string) bool
}

// Wallets resolves a wallet's source address on a network.
type Wallets interface {
	Address(walletID, network string) (string, error)
}

// Deps groups the collaborators of the HTTP API.
type Deps struct {
	Quotes   Quoter
	Swaps    coordinator.Service
	Store    Store
	Tracker  Tracker
	Wallets  Wallets
	Registry *asset.Registry
	// Notifications serves the progress stream. Optional.
	Notifications http.Handler
	// AcceptTimeout bounds NewSwap, which does not follow the request context.
	AcceptTimeout time.Duration
}

// HTTP serves the swap API
type HTTP struct {
	deps     Deps
	validate *validator.Validate
	logger   *zap.Logger
}

// RegisterRoutes registers the swap API on the given chi router
func RegisterRoutes(r chi.Router, deps Deps, logger *zap.Logger) {
	h := &HTTP{
		deps:     deps,
		validate: validator.New(),
		logger:   logger,
	}

	handle := apphttp.LoggedHandler(logger)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/statuses", handle(h.statuses))
		r.Post("/quotes", handle(h.quote))
		r.Post("/swaps", handle(h.createSwap))
		r.Get("/swaps", handle(h.listSwaps))
		r.Get("/swaps/{id}", handle(h.getSwap))
		r.Get("/swaps/{id}/status", handle(h.swapStatus))
		r.Post("/swaps/{id}/abort", handle(h.abortSwap))
		if deps.Notifications != nil {
			r.Get("/notifications", h.notifications)
		}
	})
}

func (h *HTTP) quote(w http.ResponseWriter, r *http.Request) error {
	walletID, err := walletFrom(r)
	if err != nil {
		return err
	}
	var req QuoteRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}

	qreq, err := h.quoteRequest(walletID, req)
	if err != nil {
		return err
	}
	q, err := h.deps.Quotes.GetQuote(r.Context(), qreq)
	if err != nil {
		return toServiceError(err)
	}

	h.writeJSON(w, http.StatusOK, QuoteResponse{
		From:            q.From,
		To:              q.To,
		Network:         q.Network,
		FromAmount:      q.FromAmount.String(),
		ToAmount:        q.ToAmount.String(),
		FromChainID:     q.FromChainID,
		ToChainID:       q.ToChainID,
		Tool:            q.Tool,
		ApprovalAddress: q.Estimate.ApprovalAddress,
		MinAmount:       h.deps.Quotes.MinAmount(r.Context(), qreq).String(),
	})
	return nil
}

// createSwap prices the request again server-side and accepts the fresh quote.
func (h *HTTP) createSwap(w http.ResponseWriter, r *http.Request) error {
	walletID, err := walletFrom(r)
	if err != nil {
		return err
	}
	var req SwapRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}
	if req.Fee.IsNegative() {
		return apperrors.BadRequestError(nil, "fee must not be negative")
	}

	qreq, err := h.quoteRequest(walletID, req.QuoteRequest)
	if err != nil {
		return err
	}
	q, err := h.deps.Quotes.GetQuote(r.Context(), qreq)
	if err != nil {
		return toServiceError(err)
	}

	// Transactions may be sent before the record is written, so a client
	// that goes away must not cut the acceptance short.
	timeout := h.deps.AcceptTimeout
	if timeout <= 0 {
		timeout = defaultAcceptTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), timeout)
	defer cancel()

	rec, err := h.deps.Swaps.NewSwap(ctx, coordinator.NewSwapRequest{
		WalletID: walletID,
		Quote:    q,
		Fee:      req.Fee,
	})
	if err != nil {
		return toServiceError(err)
	}
	h.deps.Tracker.Track(rec)

	h.writeJSON(w, http.StatusCreated, toSwapResponse(rec))
	return nil
}

func (h *HTTP) listSwaps(w http.ResponseWriter, r *http.Request) error {
	walletID, err := walletFrom(r)
	if err != nil {
		return err
	}

	opts := []swapstore.ListOption{swapstore.WithWalletID(walletID)}
	if s := r.URL.Query().Get("status"); s != "" {
		status := swap.Status(s)
		if !status.Valid() {
			return apperrors.BadRequestError(nil, "unknown status "+s)
		}
		opts = append(opts, swapstore.WithStatus(status))
	}
	limit := defaultLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > maxLimit {
			return apperrors.BadRequestError(err, "limit must be between 1 and 500")
		}
		limit = n
	}
	opts = append(opts, swapstore.WithLimit(limit))

	recs, err := h.deps.Store.ListSwaps(r.Context(), opts...)
	if err != nil {
		return toServiceError(err)
	}
	out := make([]SwapResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toSwapResponse(rec))
	}
	h.writeJSON(w, http.StatusOK, out)
	return nil
}

func (h *HTTP) getSwap(w http.ResponseWriter, r *http.Request) error {
	rec, err := h.ownedSwap(r)
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, toSwapResponse(rec))
	return nil
}

func (h *HTTP) swapStatus(w http.ResponseWriter, r *http.Request) error {
	rec, err := h.ownedSwap(r)
	if err != nil {
		return err
	}
	n, err := notify.FromRecord(h.deps.Registry, rec)
	if err != nil {
		return toServiceError(err)
	}

	h.writeJSON(w, http.StatusOK, SwapStatusResponse{
		ID:           rec.ID,
		Status:       rec.Status,
		Step:         n.Step,
		TotalSteps:   n.TotalSteps,
		Label:        n.Label,
		Message:      n.Message,
		FilterStatus: n.FilterStatus,
		Timeline:     swap.TimelineSteps,
		TxTypes:      swap.TxTypes,
		FromTxType:   swap.FromTxType,
		ToTxType:     toTxType(),
		Terminal:     rec.Status.IsTerminal(),
	})
	return nil
}

func toTxType() *string {
	if swap.ToTxType == "" {
		return nil
	}
	t := swap.ToTxType
	return &t
}

func (h *HTTP) abortSwap(w http.ResponseWriter, r *http.Request) error {
	rec, err := h.ownedSwap(r)
	if err != nil {
		return err
	}
	aborted := h.deps.Tracker.Abort(rec.ID)
	h.writeJSON(w, http.StatusOK, AbortResponse{ID: rec.ID, Aborted: aborted})
	return nil
}

func (h *HTTP) statuses(w http.ResponseWriter, _ *http.Request) error {
	out := make([]StatusInfo, 0, len(swap.Statuses()))
	for _, s := range swap.Statuses() {
		d, _ := swap.DisplayFor(s)
		out = append(out, StatusInfo{
			Status:       s,
			Step:         d.Step,
			Label:        d.Label,
			FilterStatus: d.FilterStatus,
			Terminal:     s.IsTerminal(),
		})
	}
	h.writeJSON(w, http.StatusOK, out)
	return nil
}

// notifications upgrades to the progress stream, scoped to the caller's wallet.
func (h *HTTP) notifications(w http.ResponseWriter, r *http.Request) {
	walletID, err := walletFrom(r)
	if err != nil {
		apphttp.DefaultErrorHandler(w, err)
		return
	}
	q := r.URL.Query()
	q.Set("wallet_id", walletID)
	r.URL.RawQuery = q.Encode()
	h.deps.Notifications.ServeHTTP(w, r)
}

// ownedSwap loads the path's swap. Swaps of other wallets are reported as missing.
func (h *HTTP) ownedSwap(r *http.Request) (*swap.Record, error) {
	walletID, err := walletFrom(r)
	if err != nil {
		return nil, err
	}
	id := chi.URLParam(r, "id")
	rec, err := h.deps.Store.GetSwap(r.Context(), id)
	if err != nil {
		return nil, toServiceError(err)
	}
	if rec.WalletID != walletID {
		return nil, apperrors.ResourceNotFoundError(swap.ErrSwapNotFound, "swap not found")
	}
	return rec, nil
}

func (h *HTTP) quoteRequest(walletID string, req QuoteRequest) (quote.Request, error) {
	if !req.Amount.IsPositive() {
		return quote.Request{}, apperrors.BadRequestError(swap.ErrInvalidAmount, "amount must be positive")
	}
	from, err := h.deps.Wallets.Address(walletID, req.Network)
	if err != nil {
		return quote.Request{}, apperrors.ForbiddenError(err, "wallet is not configured for "+req.Network)
	}
	return quote.Request{
		From:        req.From,
		To:          req.To,
		Amount:      req.Amount,
		Network:     req.Network,
		FromAddress: from,
	}, nil
}

func (h *HTTP) decode(r *http.Request, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}
	if err := h.validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return apperrors.BadRequestError(err, "invalid field "+verrs[0].Field())
		}
		return apperrors.BadRequestError(err, "invalid request")
	}
	return nil
}

func (h *HTTP) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Debug("Failed to write response", zap.Error(err))
	}
}

// walletFrom returns the authenticated wallet, falling back to the wallet
// header when authentication is disabled.
func walletFrom(r *http.Request) (string, error) {
	if id, ok := auth.WalletIDFromContext(r.Context()); ok {
		return id, nil
	}
	if id := r.Header.Get(WalletHeader); id != "" {
		return id, nil
	}
	return "", apperrors.UnAuthorizedError(nil, "wallet identity required")
}
