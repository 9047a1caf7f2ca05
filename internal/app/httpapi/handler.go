// Package httpapi exposes the bridge over REST.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/asset"
	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/bridge"
	domainregistry "github.com/CrossMart-Network/bridge_layer/internal/app/domain/registry"
	"github.com/CrossMart-Network/bridge_layer/internal/app/events"
	"github.com/CrossMart-Network/bridge_layer/internal/app/metrics"
	bridgesvc "github.com/CrossMart-Network/bridge_layer/internal/app/services/bridge"
	registrysvc "github.com/CrossMart-Network/bridge_layer/internal/app/services/registry"
)

// Config carries the handler's security settings.
type Config struct {
	// JWTSecret signs and verifies admin tokens. Empty disables the
	// admin endpoints.
	JWTSecret string
	// RelayToken gates the relay's delivery callback.
	RelayToken string
	// RateLimit is requests per second per client; zero disables
	// limiting.
	RateLimit int
	// RateBurst is the per-client burst allowance.
	RateBurst int
}

// handler bundles the HTTP endpoints over the bridge services.
type handler struct {
	bridge   *bridgesvc.Service
	registry *registrysvc.Service
	audit    events.Logger
	cfg      Config
}

// NewHandler returns the router exposing the bridge REST API.
func NewHandler(bridgeSvc *bridgesvc.Service, registrySvc *registrysvc.Service, audit events.Logger, cfg Config) http.Handler {
	h := &handler{bridge: bridgeSvc, registry: registrySvc, audit: audit, cfg: cfg}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/events", h.listEvents).Methods(http.MethodGet)

	r.HandleFunc("/bridge", h.initiateBridge).Methods(http.MethodPost)
	r.HandleFunc("/bridge/requests", h.listRequests).Methods(http.MethodGet)
	r.HandleFunc("/bridge/requests/{id}", h.getRequest).Methods(http.MethodGet)

	r.Handle("/messages/delivered", h.relayAuth(http.HandlerFunc(h.messageDelivered))).Methods(http.MethodPost)
	// retry carries its own proof: the payload must hash to the stored
	// commitment, so no caller identity is required
	r.HandleFunc("/messages/retry", h.retryMessage).Methods(http.MethodPost)

	r.Handle("/registry/assets", h.adminAuth(http.HandlerFunc(h.registerAsset))).Methods(http.MethodPost)
	r.Handle("/registry/assets/{id}/sync", h.adminAuth(http.HandlerFunc(h.updateSync))).Methods(http.MethodPost)
	r.HandleFunc("/registry/assets", h.listAssets).Methods(http.MethodGet)
	r.HandleFunc("/registry/assets/{id}", h.getAsset).Methods(http.MethodGet)

	r.HandleFunc("/chains", h.listChains).Methods(http.MethodGet)
	r.Handle("/chains/{tag}", h.adminAuth(http.HandlerFunc(h.setChain))).Methods(http.MethodPut)

	var out http.Handler = r
	if cfg.RateLimit > 0 {
		out = newRateLimiter(cfg.RateLimit, cfg.RateBurst).wrap(out)
	}
	return metrics.InstrumentHandler(out)
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) listEvents(w http.ResponseWriter, r *http.Request) {
	n := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		n = parsed
	}

	if assetID := r.URL.Query().Get("asset"); assetID != "" {
		writeJSON(w, http.StatusOK, h.audit.RecentByAsset(assetID, n))
		return
	}
	if kind := r.URL.Query().Get("type"); kind != "" {
		writeJSON(w, http.StatusOK, h.audit.RecentByType(events.EventType(kind), n))
		return
	}
	writeJSON(w, http.StatusOK, h.audit.Recent(n))
}

func (h *handler) initiateBridge(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Owner          string `json:"owner"`
		Contract       string `json:"contract"`
		TargetContract string `json:"target_contract"`
		TokenOrListing uint64 `json:"token_or_listing"`
		AssetID        string `json:"asset_id"`
		IsToken        bool   `json:"is_token"`
		TargetChain    uint16 `json:"target_chain"`
		Fee            int64  `json:"fee"`
		RefundAddr     string `json:"refund_addr"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	req, err := h.bridge.InitiateBridge(r.Context(), bridgesvc.InitiateRequest{
		Owner:          payload.Owner,
		Contract:       payload.Contract,
		TargetContract: payload.TargetContract,
		TokenOrListing: payload.TokenOrListing,
		AssetID:        payload.AssetID,
		IsToken:        payload.IsToken,
		TargetChain:    asset.ChainTag(payload.TargetChain),
		Fee:            payload.Fee,
		RefundAddr:     payload.RefundAddr,
	})
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *handler) listRequests(w http.ResponseWriter, r *http.Request) {
	owner := strings.TrimSpace(r.URL.Query().Get("owner"))
	if owner == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("owner query parameter is required"))
		return
	}
	reqs, err := h.bridge.RequestsByOwner(r.Context(), owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

func (h *handler) getRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.bridge.Request(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *handler) messageDelivered(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SourceChain    uint16 `json:"source_chain"`
		SourceEndpoint string `json:"source_endpoint"`
		Sequence       uint64 `json:"sequence"`
		Payload        []byte `json:"payload"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.bridge.OnMessageDelivered(r.Context(), asset.ChainTag(payload.SourceChain), payload.SourceEndpoint, payload.Sequence, payload.Payload); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *handler) retryMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SourceChain    uint16 `json:"source_chain"`
		SourceEndpoint string `json:"source_endpoint"`
		Sequence       uint64 `json:"sequence"`
		Payload        []byte `json:"payload"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.bridge.RetryMessage(r.Context(), asset.ChainTag(payload.SourceChain), payload.SourceEndpoint, payload.Sequence, payload.Payload); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) registerAsset(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		AssetID        string `json:"asset_id"`
		OriginContract string `json:"origin_contract"`
		TargetContract string `json:"target_contract"`
		OriginChain    uint16 `json:"origin_chain"`
		TargetChain    uint16 `json:"target_chain"`
		TokenOrListing uint64 `json:"token_or_listing"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id, err := asset.ParseIdentity(payload.AssetID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rec, err := h.registry.RegisterAsset(r.Context(), id, payload.OriginContract, payload.TargetContract, asset.ChainTag(payload.OriginChain), asset.ChainTag(payload.TargetChain), payload.TokenOrListing)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *handler) updateSync(w http.ResponseWriter, r *http.Request) {
	id, err := asset.ParseIdentity(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var payload struct {
		Price       int64  `json:"price"`
		Block       uint64 `json:"block"`
		TargetChain uint16 `json:"target_chain"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rec, err := h.registry.UpdateSync(r.Context(), id, payload.Price, payload.Block, asset.ChainTag(payload.TargetChain))
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handler) listAssets(w http.ResponseWriter, r *http.Request) {
	recs, err := h.registry.ListAssets(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *handler) getAsset(w http.ResponseWriter, r *http.Request) {
	id, err := asset.ParseIdentity(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rec, err := h.registry.GetAsset(r.Context(), id)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handler) setChain(w http.ResponseWriter, r *http.Request) {
	tag, err := strconv.ParseUint(mux.Vars(r)["tag"], 10, 16)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid chain tag: %w", err))
		return
	}
	var payload struct {
		Endpoint      string `json:"endpoint"`
		Confirmations uint64 `json:"confirmations"`
		FeeBps        int64  `json:"fee_bps"`
		Active        bool   `json:"active"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cfg, err := h.registry.SetChainConfig(r.Context(), domainregistry.ChainConfig{
		Chain:         asset.ChainTag(tag),
		Endpoint:      payload.Endpoint,
		Confirmations: payload.Confirmations,
		FeeBps:        payload.FeeBps,
		Active:        payload.Active,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *handler) listChains(w http.ResponseWriter, r *http.Request) {
	cfgs, err := h.registry.ListChains(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, cfgs)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, domainregistry.ErrAssetNotFound),
		errors.Is(err, bridge.ErrRetryNotFound):
		return http.StatusNotFound
	case errors.Is(err, domainregistry.ErrAssetExists),
		errors.Is(err, bridge.ErrAssetLocked):
		return http.StatusConflict
	case errors.Is(err, domainregistry.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, bridge.ErrRetryMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domainregistry.ErrChainNotSupported),
		errors.Is(err, bridge.ErrInsufficientFee),
		errors.Is(err, bridge.ErrNotOwner),
		errors.Is(err, bridge.ErrListingInactive),
		errors.Is(err, bridge.ErrListingExpired),
		errors.Is(err, bridge.ErrListingNotTransferable),
		errors.Is(err, bridge.ErrListingAssetMismatch):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
