// Package rpc exposes the coupon core over HTTP: merchant tooling, the
// identity-service surface, proof submission and the pure read surface.
package rpc

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"zkcoupon/native/confirm"
	"zkcoupon/native/coupon"
	"zkcoupon/native/registry"
	"zkcoupon/native/wallet"
	"zkcoupon/observability/metrics"
	"zkcoupon/zkproof"
)

const maxBodyBytes = 1 << 16 // 64 KiB

// Server bundles the engine handles behind the HTTP handlers.
type Server struct {
	registry   *registry.Registry
	ledger     *coupon.Engine
	wallets    *wallet.Directory
	metrics    *metrics.CouponMetrics
	log        *slog.Logger
	confirmTTL time.Duration
}

// NewServer constructs the HTTP surface over the supplied engines.
func NewServer(reg *registry.Registry, ledger *coupon.Engine, wallets *wallet.Directory, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		registry:   reg,
		ledger:     ledger,
		wallets:    wallets,
		metrics:    metrics.Coupon(),
		log:        logger,
		confirmTTL: 10 * time.Minute,
	}
}

// SetConfirmationTTL overrides the lifetime of confirmation tokens minted by
// the redemption-initiation endpoint.
func (s *Server) SetConfirmationTTL(ttl time.Duration) {
	if ttl > 0 {
		s.confirmTTL = ttl
	}
}

// Router wires the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Post("/merchants", s.handleRegisterMerchant)
		v1.Get("/merchants", s.handleListMerchants)
		v1.Get("/merchants/{merchantID}", s.handleGetMerchant)
		v1.Patch("/merchants/{merchantID}", s.handleUpdateMerchant)
		v1.Get("/merchants/{merchantID}/programs", s.handleMerchantPrograms)
		v1.Get("/merchants/{merchantID}/coupons", s.handleMerchantCoupons)

		v1.Post("/programs", s.handleCreateProgram)
		v1.Get("/programs/{programID}", s.handleGetProgram)
		v1.Put("/programs/{programID}/key", s.handleRegisterKey)

		v1.Post("/wallets", s.handleCreateWallet)
		v1.Get("/wallets/{address}", s.handleGetWallet)
		v1.Get("/wallets/{address}/coupons", s.handleWalletCoupons)
		v1.Post("/wallets/{address}/recover", s.handleRecoverWallet)
		v1.Get("/wallets/by-commitment/{commitment}", s.handleLookupWallet)

		v1.Post("/coupons", s.handleIssue)
		v1.Get("/coupons/{tokenID}", s.handleGetCoupon)
		v1.Get("/coupons/{tokenID}/valid", s.handleCouponValid)
		v1.Post("/coupons/{tokenID}/redemption", s.handleInitiateRedemption)
		v1.Post("/coupons/{tokenID}/redeem", s.handleRedeem)
	})

	return r
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusForError(err), errorResponse{Error: err.Error()})
}

func (s *Server) badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

// statusForError maps the protocol error taxonomy onto HTTP statuses:
// validation 400, authorization 403, missing 404, conflicts 409, expiry 410,
// proof rejection 422.
func statusForError(err error) int {
	switch {
	case errors.Is(err, registry.ErrMerchantNotFound),
		errors.Is(err, registry.ErrProgramNotFound),
		errors.Is(err, coupon.ErrCouponNotFound),
		errors.Is(err, wallet.ErrWalletNotFound),
		errors.Is(err, confirm.ErrTokenNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrMerchantInactive),
		errors.Is(err, registry.ErrNotProgramOwner):
		return http.StatusForbidden
	case errors.Is(err, coupon.ErrIssuanceCapReached),
		errors.Is(err, coupon.ErrCouponAlreadyRedeemed),
		errors.Is(err, confirm.ErrTokenAlreadyUsed),
		errors.Is(err, confirm.ErrTokenMismatch),
		errors.Is(err, wallet.ErrWalletExists),
		errors.Is(err, wallet.ErrRecoveryConflict):
		return http.StatusConflict
	case errors.Is(err, coupon.ErrCouponExpired),
		errors.Is(err, confirm.ErrTokenExpired):
		return http.StatusGone
	case errors.Is(err, zkproof.ErrInvalidProof):
		return http.StatusUnprocessableEntity
	case errors.Is(err, registry.ErrInvalidProgramParams),
		errors.Is(err, registry.ErrInvalidMerchant),
		errors.Is(err, wallet.ErrInvalidCommitment),
		errors.Is(err, wallet.ErrInvalidRecoveryKey),
		errors.Is(err, coupon.ErrInvalidOwner),
		errors.Is(err, confirm.ErrInvalidAction):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// reasonForError produces the stable label used on rejection metrics.
func reasonForError(err error) string {
	switch {
	case errors.Is(err, coupon.ErrIssuanceCapReached):
		return "cap_reached"
	case errors.Is(err, coupon.ErrCouponAlreadyRedeemed):
		return "already_redeemed"
	case errors.Is(err, coupon.ErrCouponExpired):
		return "coupon_expired"
	case errors.Is(err, coupon.ErrCouponNotFound):
		return "not_found"
	case errors.Is(err, zkproof.ErrInvalidProof):
		return "invalid_proof"
	case errors.Is(err, confirm.ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, confirm.ErrTokenAlreadyUsed):
		return "token_used"
	case errors.Is(err, confirm.ErrTokenMismatch), errors.Is(err, confirm.ErrTokenNotFound):
		return "token_invalid"
	case errors.Is(err, registry.ErrMerchantInactive):
		return "merchant_inactive"
	case errors.Is(err, registry.ErrProgramNotFound):
		return "program_not_found"
	default:
		return "internal"
	}
}
