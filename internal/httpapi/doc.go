// Package httpapi serves the coordinator to presentation clients over HTTP.
//
// Routes:
//
//	GET    /health
//	GET    /metrics
//	GET    /api/v1/status
//	GET    /api/v1/status/stream        websocket, one JSON message per status change
//	GET    /api/v1/watched
//	GET    /api/v1/worlds
//	GET    /api/v1/items/:id
//	PUT    /api/v1/items/:id/watch?world=
//	DELETE /api/v1/items/:id/watch
//	POST   /api/v1/items/:id/refresh
//
// Snapshot responses carry totalPrice for every listing and sale, computed
// when the response is built.
package httpapi
