package rpc

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"

	"zkcoupon/native/registry"
)

type registerMerchantRequest struct {
	Name          string         `json:"name"`
	WalletAddress common.Address `json:"walletAddress"`
}

func (s *Server) handleRegisterMerchant(w http.ResponseWriter, r *http.Request) {
	var req registerMerchantRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.badRequest(w, "invalid request body")
		return
	}
	merchant, err := s.registry.RegisterMerchant(req.Name, [20]byte(req.WalletAddress))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info("merchant registered", "merchant", merchant.ID)
	writeJSON(w, http.StatusCreated, newMerchantView(merchant))
}

type updateMerchantRequest struct {
	Name          *string         `json:"name,omitempty"`
	WalletAddress *common.Address `json:"walletAddress,omitempty"`
	Active        *bool           `json:"active,omitempty"`
}

func (s *Server) handleUpdateMerchant(w http.ResponseWriter, r *http.Request) {
	var req updateMerchantRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.badRequest(w, "invalid request body")
		return
	}
	update := registry.MerchantUpdate{Name: req.Name, Active: req.Active}
	if req.WalletAddress != nil {
		addr := [20]byte(*req.WalletAddress)
		update.WalletAddress = &addr
	}
	merchant, err := s.registry.UpdateMerchantDetails(chi.URLParam(r, "merchantID"), update)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newMerchantView(merchant))
}

func (s *Server) handleGetMerchant(w http.ResponseWriter, r *http.Request) {
	merchant, err := s.registry.Merchant(chi.URLParam(r, "merchantID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newMerchantView(merchant))
}

func (s *Server) handleListMerchants(w http.ResponseWriter, _ *http.Request) {
	merchants, err := s.registry.Merchants()
	if err != nil {
		s.writeError(w, err)
		return
	}
	views := make([]merchantView, 0, len(merchants))
	for _, m := range merchants {
		views = append(views, newMerchantView(m))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleMerchantPrograms(w http.ResponseWriter, r *http.Request) {
	programs, err := s.registry.MerchantPrograms(chi.URLParam(r, "merchantID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	views := make([]programView, 0, len(programs))
	for _, p := range programs {
		views = append(views, newProgramView(p))
	}
	writeJSON(w, http.StatusOK, views)
}

type createProgramRequest struct {
	MerchantID      string        `json:"merchantId"`
	ValidityPeriod  int64         `json:"validityPeriod"`
	MaxIssuance     uint64        `json:"maxIssuance"`
	VerificationKey hexutil.Bytes `json:"verificationKey,omitempty"`
}

func (s *Server) handleCreateProgram(w http.ResponseWriter, r *http.Request) {
	var req createProgramRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.badRequest(w, "invalid request body")
		return
	}
	program, err := s.registry.CreateProgram(req.MerchantID, req.ValidityPeriod, req.MaxIssuance, req.VerificationKey)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info("program created", "program", common.Hash(program.ID).Hex(), "merchant", req.MerchantID)
	writeJSON(w, http.StatusCreated, newProgramView(program))
}

func (s *Server) handleGetProgram(w http.ResponseWriter, r *http.Request) {
	id, err := parseHash(chi.URLParam(r, "programID"))
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	program, err := s.registry.Program([32]byte(id))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newProgramView(program))
}

type registerKeyRequest struct {
	MerchantID      string        `json:"merchantId"`
	VerificationKey hexutil.Bytes `json:"verificationKey"`
}

func (s *Server) handleRegisterKey(w http.ResponseWriter, r *http.Request) {
	id, err := parseHash(chi.URLParam(r, "programID"))
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	var req registerKeyRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.badRequest(w, "invalid request body")
		return
	}
	program, err := s.registry.RegisterVerificationKey([32]byte(id), req.MerchantID, req.VerificationKey)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info("verification key rotated", "program", id.Hex(), "version", program.KeyVersion)
	writeJSON(w, http.StatusOK, newProgramView(program))
}
