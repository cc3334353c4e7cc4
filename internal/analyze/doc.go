// Package analyze counts the entities that survive filtering per area and
// floor, and proposes a bridges section that keeps every bridge under the
// accessory limit.
//
// Suggestions are greedy and per floor: a floor that fits becomes one
// bridge named after it; a floor that does not is split into "<Floor> A",
// "<Floor> B" and so on, largest areas first. Areas with no floor are
// grouped under "Unassigned Floor".
package analyze
