package correlator

import "strings"

// Channel naming conventions of the switch's queue routing. A call entering
// a queue is carried by a Local channel pair "Local/<member>@from-queue-XXXX;1"
// and ";2". These strings are the switch's contract and must match exactly.
const (
	localTech       = "Local"
	queueLegContext = "@from-queue"
	queueLegOne     = ";1"
	queueLegTwo     = ";2"
)

// IsQueueRoutingLeg reports whether a channel only exists to route a call
// into a queue: its id is a Local channel and it is bridged to a from-queue leg.
func IsQueueRoutingLeg(channelID, bridgedID string) bool {
	return strings.Contains(channelID, localTech) && strings.Contains(bridgedID, queueLegContext)
}

// isQueueLeg reports whether the id names one half of a from-queue Local pair.
func isQueueLeg(channelID string) bool {
	return strings.Contains(channelID, localTech) && strings.Contains(channelID, queueLegContext)
}

// IsFirstLeg reports whether the id is the ";1" half of a Local pair.
func IsFirstLeg(channelID string) bool {
	return strings.HasPrefix(channelID, localTech) && strings.HasSuffix(channelID, queueLegOne)
}

// PartnerLeg maps the ";2" half of a queue leg to its ";1" half, which
// carries the queue the call passed through.
func PartnerLeg(channelID string) string {
	if strings.HasSuffix(channelID, queueLegTwo) {
		return strings.TrimSuffix(channelID, queueLegTwo) + queueLegOne
	}
	return channelID
}
