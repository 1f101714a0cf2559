package model

import "strings"

// Channel is one switch-level call leg taken from a channel list snapshot.
// It only lives for one reconciliation pass.
type Channel struct {
	ID             string `json:"channel"`
	UniqueID       string `json:"uniqueid"`
	LinkedID       string `json:"linkedid"`
	BridgeID       string `json:"-"`
	BridgedChannel string `json:"bridgedChannel"`
	CallerNum      string `json:"callerNum"`
	CallerName     string `json:"callerName"`
	ConnectedNum   string `json:"connectedNum"`
	ConnectedName  string `json:"connectedName"`
	State          string `json:"status"`
	Context        string `json:"context"`
	Exten          string `json:"exten"`
	Application    string `json:"application"`
	AppData        string `json:"applicationData"`
	Duration       int    `json:"duration"`

	// Source is true for the leg that originated the call.
	Source bool `json:"-"`

	// Attribution, filled by the engine from its own entities.
	Extension string `json:"-"`
	Trunk     string `json:"-"`
	Queue     string `json:"-"`
}

// Endpoint splits a channel id like "SIP/201-0000001a" into its
// technology and endpoint name ("SIP", "201").
func Endpoint(channelID string) (tech, name string) {
	slash := strings.IndexByte(channelID, '/')
	if slash < 0 {
		return "", ""
	}
	tech = channelID[:slash]
	rest := channelID[slash+1:]
	if dash := strings.LastIndexByte(rest, '-'); dash >= 0 {
		rest = rest[:dash]
	}
	return tech, rest
}

// Owner returns the extension or trunk id the channel is attributed to.
func (c Channel) Owner() string {
	if c.Extension != "" {
		return c.Extension
	}
	return c.Trunk
}
