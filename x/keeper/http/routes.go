package http

// Route patterns for the keeper HTTP surface.
const (
	routeHealth    = "/healthz"
	routeStatus    = "/v1/status"
	routeLastCycle = "/v1/cycles/last"
)

// Route names for mux URL building.
const (
	routeNameHealth    = "keeper_health"
	routeNameStatus    = "keeper_status"
	routeNameLastCycle = "keeper_last_cycle"
)
