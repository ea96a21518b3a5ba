// Package model defines the market-board data types shared across mbsync.
//
// Conventions:
//   - Prices: integer gil per unit
//   - Timestamps: time.Time in UTC
//   - Item IDs: game item IDs as int
package model
