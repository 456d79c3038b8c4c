package handlers

import (
	"log/slog"
	"net/http"

	"kiira-hq/gateway/pkg/agents"
	"kiira-hq/gateway/pkg/gateway"
	"kiira-hq/gateway/pkg/proxy"
	"kiira-hq/gateway/pkg/proxy/types"
	"kiira-hq/gateway/pkg/telemetry/logging"
)

const (
	// modelCreated is the fixed creation time reported for every model.
	modelCreated = 1677610602

	modelOwner = "move132"
)

// ModelsHandler serves GET /v1/models from the agent catalog. With a
// configured agent list only matching catalog entries are listed. When the
// catalog cannot be fetched the configured aliases are listed instead, or
// the default agent when there are none.
type ModelsHandler struct {
	gateway      *gateway.Gateway
	defaultAgent string
	logger       *slog.Logger
}

// NewModelsHandler creates a models handler.
func NewModelsHandler(gw *gateway.Gateway, defaultAgent string, logger *slog.Logger) *ModelsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelsHandler{gateway: gw, defaultAgent: defaultAgent, logger: logger}
}

// ServeHTTP implements http.Handler.
func (h *ModelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	configured := h.gateway.AgentList()

	var ids []string
	entries, err := h.gateway.Resolver().Catalog(ctx, nil, "")
	switch {
	case err != nil:
		h.logger.WarnContext(ctx, "agent catalog unavailable, listing configured agents",
			append(logging.Attrs(ctx), "error", err)...)
		ids = configured
		if len(ids) == 0 && h.defaultAgent != "" {
			ids = []string{h.defaultAgent}
		}
	case len(configured) == 0:
		for _, e := range entries {
			ids = append(ids, e.Label)
		}
	default:
		threshold := h.gateway.Resolver().Threshold()
		for _, e := range entries {
			for _, alias := range configured {
				if agents.Match(e.Label, alias, threshold) {
					ids = append(ids, e.Label)
					break
				}
			}
		}
	}

	_ = proxy.WriteJSONResponse(w, http.StatusOK, modelList(ids))
}

func modelList(ids []string) types.ModelList {
	list := types.ModelList{Object: types.ObjectList, Data: []types.Model{}}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		list.Data = append(list.Data, types.Model{
			ID:      id,
			Object:  types.ObjectModel,
			Created: modelCreated,
			OwnedBy: modelOwner,
		})
	}
	return list
}
