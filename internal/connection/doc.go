// Package connection implements the push channel to the market data provider.
//
// The Connection Manager:
//   - Maintains one WebSocket connection and a set of item subscriptions
//   - Replays every subscription after each successful connect
//   - Reconnects after drops with capped exponential backoff
//   - Reports state changes to any number of status watchers
//   - Hands complete inbound frames to the Message Router
package connection
