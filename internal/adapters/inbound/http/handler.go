// handler.go provides the HTTP read API over published farm state.
//
//   - GET /health: liveness of the reconciler
//   - GET /v1/farms/{chainID}/{account}: every published farm of an account
//   - GET /v1/farms/{chainID}/{account}/errors: farms holding error positions
//   - GET /v1/farms/{chainID}/{account}/{farm}: one published farm
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/farmsync/internal/domain/entity"
	"github.com/archon-research/farmsync/internal/ports/inbound"
)

// Handler implements HTTP handlers for the API.
type Handler struct {
	service inbound.FarmQueryService
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler with the given service.
func NewHandler(service inbound.FarmQueryService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: service,
		logger:  logger.With("component", "http-handler"),
	}
}

// RegisterRoutes registers the HTTP routes with the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /v1/farms/{chainID}/{account}", h.AccountFarms)
	mux.HandleFunc("GET /v1/farms/{chainID}/{account}/errors", h.ErrorPositions)
	mux.HandleFunc("GET /v1/farms/{chainID}/{account}/{farm}", h.Farm)
}

type farmResponse struct {
	Farm  entity.UserFarmInfo `json:"farm"`
	Stale bool                `json:"stale"`
}

type accountResponse struct {
	ChainID int64          `json:"chainId"`
	Account string         `json:"account"`
	Farms   []farmResponse `json:"farms"`
}

type errorPositionsResponse struct {
	Farm           string   `json:"farm"`
	ErrorPositions []string `json:"errorPositions"`
}

// Health handles the health check endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.respondError(w, http.StatusServiceUnavailable, "service unhealthy")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// AccountFarms returns every published farm of the account.
func (h *Handler) AccountFarms(w http.ResponseWriter, r *http.Request) {
	chainID, account, ok := h.parseAccount(w, r)
	if !ok {
		return
	}

	farms := h.service.AccountFarms(chainID, account)
	resp := accountResponse{
		ChainID: chainID,
		Account: account.Hex(),
		Farms:   make([]farmResponse, 0, len(farms)),
	}
	for _, info := range farms {
		resp.Farms = append(resp.Farms, farmResponse{Farm: info, Stale: h.service.IsStale(info)})
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// Farm returns one published farm of the account.
func (h *Handler) Farm(w http.ResponseWriter, r *http.Request) {
	chainID, account, ok := h.parseAccount(w, r)
	if !ok {
		return
	}
	farm, ok := parseAddress(r.PathValue("farm"))
	if !ok {
		h.respondError(w, http.StatusBadRequest, "invalid farm address")
		return
	}

	info, err := h.service.Farm(entity.FarmKey{ChainID: chainID, Account: account, Farm: farm})
	if errors.Is(err, inbound.ErrFarmNotFound) {
		h.respondError(w, http.StatusNotFound, "farm not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load farm", "farm", farm.Hex(), "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.respondJSON(w, http.StatusOK, farmResponse{Farm: info, Stale: h.service.IsStale(info)})
}

// ErrorPositions lists the farms of the account that hold positions needing
// an emergency withdraw.
func (h *Handler) ErrorPositions(w http.ResponseWriter, r *http.Request) {
	chainID, account, ok := h.parseAccount(w, r)
	if !ok {
		return
	}

	resp := []errorPositionsResponse{}
	for _, info := range h.service.AccountFarms(chainID, account) {
		if len(info.ErrorPositions) == 0 {
			continue
		}
		resp = append(resp, errorPositionsResponse{
			Farm:           info.Farm.Hex(),
			ErrorPositions: idStrings(info.ErrorPositions),
		})
	}
	h.respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) parseAccount(w http.ResponseWriter, r *http.Request) (int64, common.Address, bool) {
	chainID, err := strconv.ParseInt(r.PathValue("chainID"), 10, 64)
	if err != nil || chainID <= 0 {
		h.respondError(w, http.StatusBadRequest, "invalid chain id")
		return 0, common.Address{}, false
	}
	account, ok := parseAddress(r.PathValue("account"))
	if !ok {
		h.respondError(w, http.StatusBadRequest, "invalid account address")
		return 0, common.Address{}, false
	}
	return chainID, account, true
}

func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func idStrings(ids []*big.Int) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
