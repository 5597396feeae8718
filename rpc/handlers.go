package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"rbtchain/core/state"
	"rbtchain/core/tx"
	"rbtchain/core/types"
	"rbtchain/crypto"
	"rbtchain/native/ringback"
	"rbtchain/services/indexer"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeNotFound       = -32004
	codeDuplicateTx    = -32010
	codeRateLimited    = -32020
	codeProgramError   = -32030
	codeAccountExists  = -32031
	codeInsufficient   = -32032
	codeNonceMismatch  = -32033
)

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// handle parses one JSON-RPC request and routes it by method.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", s.cfg.MaxBodyBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	switch req.Method {
	case "rbt_sendTransaction":
		s.handleSendTransaction(w, r, req)
	case "rbt_getBalance":
		s.handleGetBalance(w, r, req)
	case "rbt_getNonce":
		s.handleGetNonce(w, r, req)
	case "rbt_getPlatform":
		s.handleGetPlatform(w, r, req)
	case "rbt_getArtist":
		s.handleGetArtist(w, r, req)
	case "rbt_getFan":
		s.handleGetFan(w, r, req)
	case "rbt_getTone":
		s.handleGetTone(w, r, req)
	case "rbt_getSubscription":
		s.handleGetSubscription(w, r, req)
	case "rbt_listSubscriptions":
		s.handleListSubscriptions(w, r, req)
	case "rbt_listArtistTones":
		s.handleListArtistTones(w, r, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
	}
}

func (s *Server) handleSendTransaction(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "raw transaction parameter required", nil)
		return
	}
	var rawHex string
	if err := json.Unmarshal(req.Params[0], &rawHex); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "raw transaction must be a hex string", err.Error())
		return
	}
	raw, err := hexutil.Decode(strings.TrimSpace(rawHex))
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid transaction encoding", err.Error())
		return
	}
	var t types.Transaction
	if err := t.UnmarshalBinary(raw); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid transaction format", err.Error())
		return
	}
	digest, err := t.Hash()
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid transaction format", err.Error())
		return
	}
	hash := "0x" + hex.EncodeToString(digest)
	if !s.rememberTx(hash) {
		writeError(w, http.StatusConflict, req.ID, codeDuplicateTx, "transaction has already been submitted", hash)
		return
	}

	receipt, err := s.exec.Apply(r.Context(), &t)
	if err != nil {
		s.forgetTx(hash)
		writeTxError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, receipt)
}

// writeTxError maps a rejected transaction onto a JSON-RPC error.
func writeTxError(w http.ResponseWriter, id interface{}, err error) {
	var domainErr *ringback.Error
	switch {
	case errors.As(err, &domainErr):
		writeError(w, http.StatusBadRequest, id, codeProgramError, domainErr.Message, ProgramErrorData{
			Code: uint32(domainErr.Code),
			Name: domainErr.Name,
		})
	case errors.Is(err, state.ErrAccountExists):
		writeError(w, http.StatusConflict, id, codeAccountExists, "account already initialised", err.Error())
	case errors.Is(err, state.ErrInsufficientFunds):
		writeError(w, http.StatusBadRequest, id, codeInsufficient, "insufficient funds", err.Error())
	case errors.Is(err, tx.ErrNonceMismatch):
		writeError(w, http.StatusConflict, id, codeNonceMismatch, "nonce mismatch", err.Error())
	case errors.Is(err, types.ErrMissingSignature),
		errors.Is(err, types.ErrInvalidSignature),
		errors.Is(err, tx.ErrUnknownInstruction),
		errors.Is(err, tx.ErrDataTooLarge),
		errors.Is(err, ringback.ErrMalformedArgs):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, "invalid transaction", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, "failed to apply transaction", err.Error())
	}
}

func parseIdentityParam(raw json.RawMessage) ([20]byte, error) {
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return [20]byte{}, fmt.Errorf("address must be a string")
	}
	addr, err := crypto.DecodeAddress(strings.TrimSpace(encoded))
	if err != nil {
		return [20]byte{}, err
	}
	if addr.Prefix() != crypto.IdentityPrefix {
		return [20]byte{}, fmt.Errorf("address must use the %s prefix", crypto.IdentityPrefix)
	}
	return addr.Array(), nil
}

func parseSequenceParam(raw json.RawMessage) (uint64, error) {
	var seq uint64
	if err := json.Unmarshal(raw, &seq); err != nil {
		return 0, fmt.Errorf("sequence must be an unsigned integer")
	}
	return seq, nil
}

func (s *Server) handleGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "address parameter required", nil)
		return
	}
	addr, err := parseIdentityParam(req.Params[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	account, err := s.exec.Account(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load account", err.Error())
		return
	}
	balance := "0"
	if account.Balance != nil {
		balance = account.Balance.String()
	}
	writeResult(w, req.ID, BalanceResult{
		Address: crypto.FormatAddress(addr),
		Balance: balance,
		Nonce:   account.Nonce,
	})
}

func (s *Server) handleGetNonce(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "address parameter required", nil)
		return
	}
	addr, err := parseIdentityParam(req.Params[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	account, err := s.exec.Account(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load account", err.Error())
		return
	}
	writeResult(w, req.ID, account.Nonce)
}

func (s *Server) handleGetPlatform(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	view := s.exec.View()
	platform, ok, err := view.Platform()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load platform", err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeNotFound, "platform has not been set up", nil)
		return
	}
	addr, err := view.PlatformAddress()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to derive platform address", err.Error())
		return
	}
	writeResult(w, req.ID, newPlatformResult(addr, platform))
}

func (s *Server) handleGetArtist(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "owner parameter required", nil)
		return
	}
	owner, err := parseIdentityParam(req.Params[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner", err.Error())
		return
	}
	view := s.exec.View()
	artist, ok, err := view.Artist(owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load artist", err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeNotFound, "artist profile not found", crypto.FormatAddress(owner))
		return
	}
	addr, err := view.ArtistAddress(owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to derive artist address", err.Error())
		return
	}
	writeResult(w, req.ID, newArtistResult(addr, artist))
}

func (s *Server) handleGetFan(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "owner parameter required", nil)
		return
	}
	owner, err := parseIdentityParam(req.Params[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner", err.Error())
		return
	}
	view := s.exec.View()
	fan, ok, err := view.Fan(owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load fan", err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeNotFound, "fan profile not found", crypto.FormatAddress(owner))
		return
	}
	addr, err := view.FanAddress(owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to derive fan address", err.Error())
		return
	}
	writeResult(w, req.ID, newFanResult(addr, fan))
}

func (s *Server) handleGetTone(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "sequence parameter required", nil)
		return
	}
	seq, err := parseSequenceParam(req.Params[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid sequence", err.Error())
		return
	}
	view := s.exec.View()
	tone, ok, err := view.Tone(seq)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load tone", err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeNotFound, "ring-back-tone not found", seq)
		return
	}
	addr, err := view.ToneAddress(seq)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to derive tone address", err.Error())
		return
	}
	writeResult(w, req.ID, newToneResult(addr, tone))
}

func (s *Server) handleGetSubscription(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 2 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "sequence and fan parameters required", nil)
		return
	}
	seq, err := parseSequenceParam(req.Params[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid sequence", err.Error())
		return
	}
	fan, err := parseIdentityParam(req.Params[1])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid fan", err.Error())
		return
	}
	view := s.exec.View()
	toneAddr, err := view.ToneAddress(seq)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to derive tone address", err.Error())
		return
	}
	sub, ok, err := view.Subscription(toneAddr, fan)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load subscription", err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeNotFound, "subscription not found", nil)
		return
	}
	addr, err := view.SubscriptionAddress(toneAddr, fan)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to derive subscription address", err.Error())
		return
	}
	writeResult(w, req.ID, newSubscriptionResult(addr, seq, sub))
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if s.indexer == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "indexer unavailable", nil)
		return
	}
	var query SubscriptionQuery
	if len(req.Params) > 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "at most one filter object allowed", nil)
		return
	}
	if len(req.Params) == 1 {
		if err := json.Unmarshal(req.Params[0], &query); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid filter", err.Error())
			return
		}
	}
	for _, value := range []string{query.Fan, query.Artist} {
		if value == "" {
			continue
		}
		if _, err := crypto.DecodeAddress(value); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address in filter", err.Error())
			return
		}
	}
	rows, err := s.indexer.ListSubscriptions(indexer.SubscriptionFilter{
		Fan:      query.Fan,
		Artist:   query.Artist,
		Sequence: query.Sequence,
		Limit:    query.Limit,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to list subscriptions", err.Error())
		return
	}
	out := make([]SubscriptionResult, 0, len(rows))
	for _, row := range rows {
		out = append(out, indexedSubscriptionResult(row))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleListArtistTones(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if s.indexer == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "indexer unavailable", nil)
		return
	}
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "artist parameter required", nil)
		return
	}
	artist, err := parseIdentityParam(req.Params[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid artist", err.Error())
		return
	}
	rows, err := s.indexer.TonesByArtist(crypto.FormatAddress(artist))
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to list tones", err.Error())
		return
	}
	out := make([]ToneResult, 0, len(rows))
	for _, row := range rows {
		out = append(out, ToneResult{
			Address:   row.Address,
			Owner:     row.Artist,
			Sequence:  row.Sequence,
			AudioName: row.AudioName,
			AudioCode: row.AudioCode,
			AudioURL:  row.AudioURL,
			Price:     row.Price,
			Duration:  row.Duration,
			CreatedAt: uint64(row.UploadedAt),
		})
	}
	writeResult(w, req.ID, out)
}
