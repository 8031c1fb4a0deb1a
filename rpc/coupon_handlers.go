package rpc

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"

	"zkcoupon/native/confirm"
)

type issueCouponRequest struct {
	ProgramID          common.Hash         `json:"programId"`
	Owner              common.Address      `json:"owner"`
	MetadataCommitment common.Hash         `json:"metadataCommitment"`
	Proof              hexutil.Bytes       `json:"proof"`
	PublicInputs       publicInputsPayload `json:"publicInputs"`
}

func (s *Server) handleIssue(w http.ResponseWriter, r *http.Request) {
	var req issueCouponRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.badRequest(w, "invalid request body")
		return
	}
	inputs, err := req.PublicInputs.toInputs()
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	minted, err := s.ledger.Issue(
		[32]byte(req.ProgramID),
		[20]byte(req.Owner),
		[32]byte(req.MetadataCommitment),
		req.Proof,
		inputs,
	)
	if err != nil {
		s.metrics.ObserveIssuanceRejected(reasonForError(err))
		s.writeError(w, err)
		return
	}
	s.metrics.ObserveIssued(minted.MerchantID)
	s.log.Info("coupon issued",
		"token", common.Hash(minted.TokenID).Hex(),
		"merchant", minted.MerchantID,
	)
	writeJSON(w, http.StatusCreated, newCouponView(minted))
}

func (s *Server) handleGetCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := parseHash(chi.URLParam(r, "tokenID"))
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	record, err := s.ledger.Get([32]byte(id))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCouponView(record))
}

func (s *Server) handleCouponValid(w http.ResponseWriter, r *http.Request) {
	id, err := parseHash(chi.URLParam(r, "tokenID"))
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	valid, err := s.ledger.IsValid([32]byte(id))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

// redemptionInitiatedResponse deliberately omits the token value: it travels
// out-of-band to the wallet owner via the notifier.
type redemptionInitiatedResponse struct {
	Status    string `json:"status"`
	ExpiresAt int64  `json:"expiresAt"`
}

func (s *Server) handleInitiateRedemption(w http.ResponseWriter, r *http.Request) {
	id, err := parseHash(chi.URLParam(r, "tokenID"))
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	token, err := s.ledger.InitiateRedemption([32]byte(id), s.confirmTTL)
	if err != nil {
		s.metrics.ObserveRedemptionRejected(reasonForError(err))
		s.writeError(w, err)
		return
	}
	s.metrics.ObserveTokenIssued(string(confirm.ActionRedeem))
	writeJSON(w, http.StatusAccepted, redemptionInitiatedResponse{
		Status:    "pending",
		ExpiresAt: token.ExpiresAt,
	})
}

type redeemCouponRequest struct {
	Proof             hexutil.Bytes       `json:"proof"`
	PublicInputs      publicInputsPayload `json:"publicInputs"`
	ConfirmationToken string              `json:"confirmationToken"`
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	id, err := parseHash(chi.URLParam(r, "tokenID"))
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	var req redeemCouponRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.badRequest(w, "invalid request body")
		return
	}
	inputs, err := req.PublicInputs.toInputs()
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	if err := s.ledger.Redeem([32]byte(id), req.Proof, inputs, req.ConfirmationToken); err != nil {
		s.metrics.ObserveRedemptionRejected(reasonForError(err))
		s.writeError(w, err)
		return
	}
	record, err := s.ledger.Get([32]byte(id))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.ObserveRedeemed(record.MerchantID)
	s.metrics.ObserveTokenConsumed(string(confirm.ActionRedeem))
	s.log.Info("coupon redeemed", "token", id.Hex(), "merchant", record.MerchantID)
	writeJSON(w, http.StatusOK, newCouponView(record))
}

func (s *Server) handleWalletCoupons(w http.ResponseWriter, r *http.Request) {
	address, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	coupons, err := s.ledger.OwnerCoupons([20]byte(address))
	if err != nil {
		s.writeError(w, err)
		return
	}
	views := make([]couponView, 0, len(coupons))
	for _, c := range coupons {
		views = append(views, newCouponView(c))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleMerchantCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := s.ledger.MerchantCoupons(chi.URLParam(r, "merchantID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	views := make([]couponView, 0, len(coupons))
	for _, c := range coupons {
		views = append(views, newCouponView(c))
	}
	writeJSON(w, http.StatusOK, views)
}
