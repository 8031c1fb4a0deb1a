package rpc

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
)

// createWalletRequest carries a pre-derived identity commitment; raw
// identifiers such as email addresses never cross the HTTP boundary. Clients
// derive the commitment locally (salted keccak over the normalised address)
// so the same mailbox always yields the same commitment and therefore the
// same wallet.
type createWalletRequest struct {
	IdentityCommitment hexutil.Bytes `json:"identityCommitment"`
	RecoveryKey        hexutil.Bytes `json:"recoveryKey"`
}

func (s *Server) handleCreateWallet(w http.ResponseWriter, r *http.Request) {
	var req createWalletRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.badRequest(w, "invalid request body")
		return
	}
	if len(req.IdentityCommitment) != 32 {
		s.badRequest(w, "identityCommitment must be 32 bytes")
		return
	}
	var identity [32]byte
	copy(identity[:], req.IdentityCommitment)

	record, err := s.wallets.Create(identity, req.RecoveryKey)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info("wallet created", "address", hexutil.Encode(record.Address[:]))
	writeJSON(w, http.StatusCreated, newWalletView(record))
}

func (s *Server) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	address, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	record, err := s.wallets.Get([20]byte(address))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newWalletView(record))
}

func (s *Server) handleLookupWallet(w http.ResponseWriter, r *http.Request) {
	commitment, err := parseHash(chi.URLParam(r, "commitment"))
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	record, err := s.wallets.Lookup([32]byte(commitment))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newWalletView(record))
}

type recoverWalletRequest struct {
	NewIdentityCommitment hexutil.Bytes `json:"newIdentityCommitment"`
	RecoveryProof         hexutil.Bytes `json:"recoveryProof"`
}

func (s *Server) handleRecoverWallet(w http.ResponseWriter, r *http.Request) {
	address, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	var req recoverWalletRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.badRequest(w, "invalid request body")
		return
	}
	if len(req.NewIdentityCommitment) != 32 {
		s.badRequest(w, "newIdentityCommitment must be 32 bytes")
		return
	}
	var commitment [32]byte
	copy(commitment[:], req.NewIdentityCommitment)

	record, err := s.wallets.Recover([20]byte(address), commitment, req.RecoveryProof)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info("wallet recovered", "address", address.Hex())
	writeJSON(w, http.StatusOK, newWalletView(record))
}
