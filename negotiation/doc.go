// Package negotiation runs turn-based bilateral negotiations over price and
// quantity.
//
// Each Party scores offers with its Utility, a pure function onto [0, 1] that
// is exactly zero outside the party's acceptable price and quantity ranges.
// The party receiving an offer accepts above 0.7, rejects at or below 0.4 (or
// its BATNA when that is higher) and counters in between by nudging the offer
// 10% in its own favour. The opening offer of a session is never rejected
// outright: the responder always counters it, since a first offer is expected
// to be anchored outside the other side's comfort zone.
//
// A Session alternates turns until one side accepts (Agreement), one side
// rejects (Impasse) or MaxRounds offers have been answered without agreement
// (Impasse).
package negotiation
