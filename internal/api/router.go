package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/oder/internal/auth"
	"github.com/erazemk/oder/internal/custody"
	"github.com/erazemk/oder/internal/model"
)

// NewRouter creates the API router with all endpoints registered. Users,
// tokens and model photos live in db; orders and pieces go through svc.
func NewRouter(db *sql.DB, svc *custody.Service, tokens *auth.Issuer) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, Tokens: tokens}
	usersHandler := &UsersHandler{DB: db}
	assetsHandler := &AssetsHandler{Custody: svc, DB: db}
	ordersHandler := &OrdersHandler{Custody: svc}

	authMW := AuthMiddleware(tokens, db)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireManager := RequireRole(model.RoleManager)

	// Public: login.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Users (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("GET /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Get))))
	mux.Handle("PUT /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireAdmin(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	// Catalog: read (all roles), write (manager+).
	mux.Handle("GET /api/assets", authMW(http.HandlerFunc(assetsHandler.List)))
	mux.Handle("POST /api/assets", authMW(requireManager(http.HandlerFunc(assetsHandler.Create))))
	mux.Handle("GET /api/assets/{id}", authMW(http.HandlerFunc(assetsHandler.Get)))
	mux.Handle("GET /api/models", authMW(http.HandlerFunc(assetsHandler.Models)))
	mux.Handle("PUT /api/models/{model}/image", authMW(requireManager(http.HandlerFunc(assetsHandler.UploadImage))))
	mux.Handle("GET /api/models/{model}/image", authMW(http.HandlerFunc(assetsHandler.GetImage)))

	// Orders and returns (all roles); extending a loan is manager+.
	mux.Handle("GET /api/orders", authMW(http.HandlerFunc(ordersHandler.List)))
	mux.Handle("POST /api/orders", authMW(http.HandlerFunc(ordersHandler.Create)))
	mux.Handle("GET /api/orders/{id}", authMW(http.HandlerFunc(ordersHandler.Get)))
	mux.Handle("POST /api/orders/{id}/returns", authMW(http.HandlerFunc(ordersHandler.Return)))
	mux.Handle("POST /api/orders/{id}/extend", authMW(requireManager(http.HandlerFunc(ordersHandler.Extend))))
	mux.Handle("GET /api/holdings/{asset}", authMW(http.HandlerFunc(ordersHandler.FindHolder)))
	mux.Handle("POST /api/holdings/{asset}/return", authMW(http.HandlerFunc(ordersHandler.ReturnHolding)))

	mux.Handle("GET /api/dashboard", authMW(http.HandlerFunc(ordersHandler.Dashboard)))

	return LoggingMiddleware(mux)
}
