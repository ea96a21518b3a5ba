// Package codec translates between the provider's JSON frames and model types.
//
// Outbound:
//   - {"event":"subscribe","channel":"listings/add/<itemId>"}
//   - {"event":"unsubscribe","channel":"listings/add/<itemId>"}
//
// Inbound push frames decode to a Message; anything unrecognized or malformed
// is reported as KindUnknown rather than as an error. REST snapshot bodies
// decode through DecodeSnapshot.
package codec
