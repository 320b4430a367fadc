package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes
	RouteAuthRegister = "/api/auth/register"
	RouteAuthLogin    = "/api/auth/login"
	RouteAuthRefresh  = "/api/auth/refresh"
	RouteAuthLogout   = "/api/auth/logout"

	// User Routes (require a Bearer access token)
	RouteUserMe         = "/api/users/me"
	RouteUserMePassword = "/api/users/me/password"
	RouteUserByID       = "/api/users/{id}"

	// CORS preflight for everything under /api
	RouteAPIPreflight = "/api/"

	RouteHealth = "/healthz"
)
