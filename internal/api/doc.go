// Package api provides the provider's REST client.
//
// REST endpoint:
//   - https://universalis.app/api/v2/{world|dc|region}/{itemId}?listings=N&entries=M
//
// The push channel lives in package connection.
package api
