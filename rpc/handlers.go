package rpc

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"pricevault/native/asset"
	"pricevault/native/oracle"
)

const requestLimit = 1 << 20 // 1 MiB

type hopPayload struct {
	Feed   uint32 `json:"feed"`
	Invert bool   `json:"invert"`
}

// assetRef addresses an asset the way callers know it: contract address plus
// numeric sub-id. The engine packs the pair into its mapping key internally.
type assetRef struct {
	Address string `json:"address"`
	SubID   uint64 `json:"subId"`
}

type portfolioRequest struct {
	Creditor string     `json:"creditor"`
	Assets   []assetRef `json:"assets"`
	Amounts  []string   `json:"amounts"`
	// Denomination is only honoured by the value-in endpoint.
	Denomination []hopPayload `json:"denomination,omitempty"`
}

type assetValuationPayload struct {
	USDValue          string `json:"usdValue"`
	CollateralFactor  uint64 `json:"collateralFactor"`
	LiquidationFactor uint64 `json:"liquidationFactor"`
}

type portfolioResponse struct {
	Assets []assetValuationPayload `json:"assets"`
	Total  string                  `json:"total"`
}

type movementRequest struct {
	Creditor string   `json:"creditor"`
	Asset    assetRef `json:"asset"`
	Amount   string   `json:"amount"`
}

type movementResponse struct {
	USDValue string `json:"usdValue"`
}

type feedCheckRequest struct {
	Feed uint32 `json:"feed"`
}

type feedCheckResponse struct {
	Feed    uint32 `json:"feed"`
	Healthy bool   `json:"healthy"`
}

func decodeBody(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, requestLimit))
	if err != nil {
		return badRequest("read request body")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return badRequest(fmt.Sprintf("parse request: %v", err))
	}
	return nil
}

func parseCreditor(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, badRequest(fmt.Sprintf("invalid creditor address %q", raw))
	}
	return common.HexToAddress(raw), nil
}

func parseAssetRef(ref assetRef) (asset.AssetKey, error) {
	raw := strings.TrimSpace(ref.Address)
	if !common.IsHexAddress(raw) {
		return asset.AssetKey{}, badRequest(fmt.Sprintf("invalid asset address %q", ref.Address))
	}
	return asset.NewAssetKey(common.HexToAddress(raw), ref.SubID), nil
}

func parseAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || amount.Sign() < 0 {
		return nil, badRequest(fmt.Sprintf("invalid amount %q", raw))
	}
	return amount, nil
}

func parseSequence(hops []hopPayload) (oracle.Sequence, error) {
	parsed := make([]oracle.Hop, len(hops))
	for i, hop := range hops {
		parsed[i] = oracle.Hop{Feed: oracle.FeedID(hop.Feed), Invert: hop.Invert}
	}
	seq, err := oracle.NewSequence(parsed...)
	if err != nil {
		return oracle.Sequence{}, badRequest(err.Error())
	}
	return seq, nil
}

func (s *Server) handlePortfolioValue(w http.ResponseWriter, r *http.Request) {
	s.servePortfolio(w, r, false)
}

func (s *Server) handlePortfolioValueIn(w http.ResponseWriter, r *http.Request) {
	s.servePortfolio(w, r, true)
}

func (s *Server) servePortfolio(w http.ResponseWriter, r *http.Request, denominated bool) {
	var req portfolioRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	creditor, err := parseCreditor(req.Creditor)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(req.Assets) != len(req.Amounts) {
		writeError(w, badRequest(fmt.Sprintf("%d assets paired with %d amounts", len(req.Assets), len(req.Amounts))))
		return
	}
	keys := make([]asset.AssetKey, len(req.Assets))
	amounts := make([]*big.Int, len(req.Amounts))
	for i := range req.Assets {
		if keys[i], err = parseAssetRef(req.Assets[i]); err != nil {
			writeError(w, err)
			return
		}
		if amounts[i], err = parseAmount(req.Amounts[i]); err != nil {
			writeError(w, err)
			return
		}
	}

	var result registryResult
	if denominated {
		seq, seqErr := parseSequence(req.Denomination)
		if seqErr != nil {
			writeError(w, seqErr)
			return
		}
		result.valuation, result.err = s.registry.ValuePortfolioIn(creditor, keys, amounts, seq)
	} else {
		result.valuation, result.err = s.registry.ValuePortfolio(creditor, keys, amounts)
	}
	s.metrics.ObserveValuation(result.err)
	if result.err != nil {
		s.log.Warn("portfolio valuation failed", "creditor", creditor.Hex(), "error", result.err)
		writeError(w, result.err)
		return
	}

	payload := portfolioResponse{
		Assets: make([]assetValuationPayload, len(result.valuation.Assets)),
		Total:  result.valuation.TotalUSD.String(),
	}
	for i, valuation := range result.valuation.Assets {
		payload.Assets[i] = assetValuationPayload{
			USDValue:          valuation.USDValue.String(),
			CollateralFactor:  valuation.CollateralFactor,
			LiquidationFactor: valuation.LiquidationFactor,
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	creditor, key, amount, err := parseMovement(r)
	if err != nil {
		writeError(w, err)
		return
	}
	value, err := s.registry.ProcessDeposit(creditor, key, amount)
	s.metrics.ObserveDeposit(err)
	if err != nil {
		s.log.Warn("deposit rejected", "creditor", creditor.Hex(), "asset", key.Hex(), "error", err)
		writeError(w, err)
		return
	}
	s.log.Info("deposit processed", "creditor", creditor.Hex(), "asset", key.Hex(), "usd", value.String())
	writeJSON(w, http.StatusOK, movementResponse{USDValue: value.String()})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	creditor, key, amount, err := parseMovement(r)
	if err != nil {
		writeError(w, err)
		return
	}
	value, err := s.registry.ProcessWithdrawal(creditor, key, amount)
	s.metrics.ObserveWithdrawal(err)
	if err != nil {
		s.log.Warn("withdrawal rejected", "creditor", creditor.Hex(), "asset", key.Hex(), "error", err)
		writeError(w, err)
		return
	}
	s.log.Info("withdrawal processed", "creditor", creditor.Hex(), "asset", key.Hex(), "usd", value.String())
	writeJSON(w, http.StatusOK, movementResponse{USDValue: value.String()})
}

func parseMovement(r *http.Request) (common.Address, asset.AssetKey, *big.Int, error) {
	var req movementRequest
	if err := decodeBody(r, &req); err != nil {
		return common.Address{}, asset.AssetKey{}, nil, err
	}
	creditor, err := parseCreditor(req.Creditor)
	if err != nil {
		return common.Address{}, asset.AssetKey{}, nil, err
	}
	key, err := parseAssetRef(req.Asset)
	if err != nil {
		return common.Address{}, asset.AssetKey{}, nil, err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return common.Address{}, asset.AssetKey{}, nil, err
	}
	return creditor, key, amount, nil
}

func (s *Server) handleFeedCheck(w http.ResponseWriter, r *http.Request) {
	var req feedCheckRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	id := oracle.FeedID(req.Feed)
	healthy, err := s.registry.Rates().CheckFeed(id)
	if err != nil {
		writeError(w, badRequest(err.Error()))
		return
	}
	s.metrics.ObserveFeedCheck(fmt.Sprintf("%d", id), healthy)
	if !healthy {
		s.log.Warn("feed check failed", "feed", id)
	}
	writeJSON(w, http.StatusOK, feedCheckResponse{Feed: req.Feed, Healthy: healthy})
}
