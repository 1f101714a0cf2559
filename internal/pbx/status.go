package pbx

import (
	"strconv"
	"strings"
	"time"

	"github.com/sweeney/asterisk-proxy/internal/ami"
	"github.com/sweeney/asterisk-proxy/internal/model"
)

// Parsers for the list actions the engine issues. They only translate AMI
// headers; attribution to extensions and trunks happens in the engine.

// parseChannels turns CoreShowChannel events into channel snapshots keyed
// by channel id. Bridged partners are derived from the BridgeId grouping;
// only two-party bridges pair channels.
func parseChannels(evts []ami.Event) map[string]model.Channel {
	chs := make(map[string]model.Channel, len(evts))
	bridges := make(map[string][]string)

	for _, ev := range evts {
		if ev.Type() != "CoreShowChannel" {
			continue
		}
		ch := model.Channel{
			ID:             ev.Get("Channel"),
			UniqueID:       ev.Get("Uniqueid"),
			LinkedID:       ev.Get("Linkedid"),
			BridgeID:       ev.Get("BridgeId"),
			BridgedChannel: ev.Get("BridgedChannel"),
			CallerNum:      cleanNum(ev.Get("CallerIDNum")),
			CallerName:     cleanName(ev.Get("CallerIDName")),
			ConnectedNum:   cleanNum(ev.Get("ConnectedLineNum")),
			ConnectedName:  cleanName(ev.Get("ConnectedLineName")),
			State:          ev.Get("ChannelStateDesc"),
			Context:        ev.Get("Context"),
			Exten:          ev.Get("Exten"),
			Application:    ev.Get("Application"),
			AppData:        ev.Get("ApplicationData"),
			Duration:       parseDuration(ev.Get("Duration")),
		}
		if ch.ID == "" {
			continue
		}
		ch.Source = ch.UniqueID != "" && ch.UniqueID == ch.LinkedID
		if ch.BridgeID != "" {
			bridges[ch.BridgeID] = append(bridges[ch.BridgeID], ch.ID)
		}
		chs[ch.ID] = ch
	}

	for _, members := range bridges {
		if len(members) != 2 {
			continue
		}
		a, b := chs[members[0]], chs[members[1]]
		if a.BridgedChannel == "" {
			a.BridgedChannel = b.ID
		}
		if b.BridgedChannel == "" {
			b.BridgedChannel = a.ID
		}
		chs[a.ID], chs[b.ID] = a, b
	}
	return chs
}

// parseDuration reads "HH:MM:SS" or plain seconds.
func parseDuration(s string) int {
	if s == "" {
		return 0
	}
	if !strings.Contains(s, ":") {
		n, _ := strconv.Atoi(s)
		return n
	}
	total := 0
	for _, part := range strings.Split(s, ":") {
		n, _ := strconv.Atoi(part)
		total = total*60 + n
	}
	return total
}

// cleanNum drops the placeholders the switch uses for an unknown number.
func cleanNum(s string) string {
	switch s {
	case "<unknown>", "(null)":
		return ""
	}
	return s
}

func cleanName(s string) string {
	return cleanNum(s)
}

// firstField returns the queue name out of a Queue application argument
// list like "401,t,,,300".
func firstField(appData string) string {
	name, _, _ := strings.Cut(appData, ",")
	return strings.TrimSpace(name)
}

// peer is one SIPpeers/IAXpeers entry.
type peer struct {
	Name   string
	Tech   model.Tech
	IP     string
	Port   string
	Status model.Status
}

func parsePeers(evts []ami.Event) []peer {
	var out []peer
	for _, ev := range evts {
		if ev.Type() != "PeerEntry" {
			continue
		}
		p := peer{
			Name:   ev.Get("ObjectName"),
			Tech:   techOf(ev.Get("Channeltype")),
			IP:     cleanAddr(ev.Get("IPaddress")),
			Port:   ev.Get("IPport"),
			Status: peerStatus(ev.Get("Status")),
		}
		if p.Port == "0" {
			p.Port = ""
		}
		out = append(out, p)
	}
	return out
}

func cleanAddr(s string) string {
	switch s {
	case "-none-", "(null)", "(Unspecified)", "":
		return ""
	}
	return s
}

// techOf maps an AMI channel type to the model technology.
func techOf(channelType string) model.Tech {
	switch strings.ToUpper(channelType) {
	case "IAX", "IAX2":
		return model.TechIAX
	}
	return model.TechSIP
}

// channelTech is the inverse of techOf, for building dial strings.
func channelTech(t model.Tech) string {
	if t == model.TechIAX {
		return "IAX2"
	}
	return "SIP"
}

// peerStatus maps the Status column of a peer list ("OK (1 ms)", "UNREACHABLE"...).
func peerStatus(s string) model.Status {
	s = strings.ToUpper(s)
	switch {
	case strings.HasPrefix(s, "OK"), strings.HasPrefix(s, "LAGGED"), strings.HasPrefix(s, "REACHABLE"):
		return model.StatusOnline
	}
	return model.StatusOffline
}

// peerEventStatus maps the PeerStatus header of a PeerStatus event.
func peerEventStatus(s string) model.Status {
	switch strings.ToLower(s) {
	case "registered", "reachable", "lagged":
		return model.StatusOnline
	}
	return model.StatusOffline
}

// extensionStatus maps the numeric device state of an ExtensionStatus event.
func extensionStatus(code int) model.Status {
	switch code {
	case 0:
		return model.StatusOnline
	case 1, 2:
		return model.StatusBusy
	case 8, 9:
		return model.StatusRinging
	case 16, 17:
		return model.StatusOnHold
	}
	return model.StatusOffline
}

// presence folds the do-not-disturb flag into an online status.
func presence(s model.Status, dnd bool) model.Status {
	if dnd && s == model.StatusOnline {
		return model.StatusDND
	}
	return s
}

// memberID extracts the extension out of a queue member interface such as
// "Local/201@from-queue/n" or "SIP/201".
func memberID(iface string) string {
	if _, rest, ok := strings.Cut(iface, "/"); ok {
		iface = rest
	}
	if i := strings.IndexAny(iface, "@/"); i >= 0 {
		iface = iface[:i]
	}
	return iface
}

func memberType(s string) model.MemberType {
	switch strings.ToLower(s) {
	case "dynamic":
		return model.MemberDynamic
	case "realtime":
		return model.MemberRealtime
	}
	return model.MemberStatic
}

// parseMember reads a QueueMember list entry or a QueueMemberAdded /
// QueueMemberStatus event.
func parseMember(ev ami.Event) model.QueueMember {
	iface := ev.Get("Interface")
	if iface == "" {
		iface = ev.Get("Location")
	}
	name := ev.Get("MemberName")
	if name == "" {
		name = ev.Get("Name")
	}
	return model.QueueMember{
		ID:           memberID(iface),
		Queue:        ev.Get("Queue"),
		Name:         name,
		Type:         memberType(ev.Get("Membership")),
		Paused:       ev.GetBool("Paused"),
		PausedReason: ev.Get("PausedReason"),
		LoggedIn:     true,
		CallsTaken:   ev.GetInt("CallsTaken"),
		LastCall:     ev.GetUnix("LastCall"),
	}
}

// queueStatus is the parsed answer of QueueStatus.
type queueStatus struct {
	Params  map[string]ami.Event
	Members map[string][]model.QueueMember
	Callers map[string]map[string]model.QueueWaitingCaller
}

func parseQueueStatus(evts []ami.Event, now time.Time) queueStatus {
	qs := queueStatus{
		Params:  make(map[string]ami.Event),
		Members: make(map[string][]model.QueueMember),
		Callers: make(map[string]map[string]model.QueueWaitingCaller),
	}
	for _, ev := range evts {
		q := ev.Get("Queue")
		switch ev.Type() {
		case "QueueParams":
			qs.Params[q] = ev
		case "QueueMember":
			qs.Members[q] = append(qs.Members[q], parseMember(ev))
		case "QueueEntry":
			wait := ev.GetInt("Wait")
			wc := model.QueueWaitingCaller{
				Channel:  ev.Get("Channel"),
				Queue:    q,
				Num:      cleanNum(ev.Get("CallerIDNum")),
				Name:     cleanName(ev.Get("CallerIDName")),
				Position: ev.GetInt("Position"),
				Wait:     wait,
				JoinedAt: now.Add(-time.Duration(wait) * time.Second),
			}
			if qs.Callers[q] == nil {
				qs.Callers[q] = make(map[string]model.QueueWaitingCaller)
			}
			qs.Callers[q][wc.Channel] = wc
		}
	}
	return qs
}

// applyQueueParams copies the rolling statistics of a QueueParams entry.
func applyQueueParams(q *model.Queue, ev ami.Event) {
	q.Strategy = ev.Get("Strategy")
	q.AvgHoldTime = ev.GetInt("Holdtime")
	q.AvgTalkTime = ev.GetInt("TalkTime")
	q.Completed = ev.GetInt("Completed")
	q.Abandoned = ev.GetInt("Abandoned")
	q.ServiceLevelTime = ev.GetInt("ServiceLevel")
	perf := ev.Get("ServicelevelPerf2")
	if perf == "" {
		perf = ev.Get("ServicelevelPerf")
	}
	q.ServiceLevelPerc, _ = strconv.ParseFloat(strings.TrimSpace(perf), 64)
}

// parseParkedCaller reads a ParkedCall list entry or a ParkedCall event.
// Older switches use the unprefixed header names.
func parseParkedCaller(ev ami.Event, now time.Time) (parking string, pc model.ParkedCaller) {
	get := func(prefixed, legacy string) string {
		if v := ev.Get(prefixed); v != "" {
			return v
		}
		return ev.Get(legacy)
	}
	parking = get("ParkingSpace", "Exten")
	pc = model.ParkedCaller{
		Channel: get("ParkeeChannel", "Channel"),
		Parking: parking,
		Num:     cleanNum(get("ParkeeCallerIDNum", "CallerIDNum")),
		Name:    cleanName(get("ParkeeCallerIDName", "CallerIDName")),
		Timeout: atoi(get("ParkingTimeout", "Timeout")),
	}
	pc.ParkedAt = now.Add(-time.Duration(atoi(ev.Get("ParkingDuration"))) * time.Second)
	return parking, pc
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}
