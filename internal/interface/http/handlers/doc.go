// Package handlers contains HTTP building blocks shared by the server:
// health checks, bearer authentication and reusable middleware.
//
// # Health Checks
//
// Named checks run in parallel, each under its own timeout. Detailed
// checks attach extra fields, such as pool statistics, to their result:
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0", nil)
//	checker.AddDetailedCheck("store", backend.Health)
//	checker.AddCheck("nats", natsCheck)
//
//	status := checker.Check(ctx)
//
// # Authentication
//
// JWTAuth validates HS256 bearer tokens. Handlers call Authorize with the
// user id the request acts for; a token whose subject differs is rejected
// with a forbidden error, a missing or invalid token with unauthorized.
//
//	auth := handlers.NewJWTAuth(secret, "community-hub", nil)
//	if err := auth.Authorize(r, body.FollowerID); err != nil { ... }
//
// # Middleware
//
//	handler := handlers.ChainHandler(
//	    mux,
//	    handlers.CORSMiddleware([]string{"*"}),
//	    handlers.SecurityHeadersMiddleware,
//	    handlers.RequestSizeLimitMiddleware(1<<16),
//	)
package handlers
