// Package server assembles the HTTP surface of the gateway: the gin
// router with the built-in routes, the request pipeline in front of it,
// the outer wrappers, and the listener controlled by the lifecycle.
//
// Request flow:
//
//	RequestID -> Logging -> Compress -> Pipeline(
//	    security headers, CORS, rate limit, body decode) -> gin router
package server
