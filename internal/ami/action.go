package ami

import (
	"bytes"
	"fmt"
	"strings"
)

// Action is a command descriptor sent to the switch: a name plus ordered parameters.
type Action struct {
	Name   string
	params []header
}

// NewAction creates an Action from a name and a flat list of key, value pairs.
// Pairs with an empty value are dropped, matching how AMI treats absent headers.
func NewAction(name string, kvs ...string) Action {
	a := Action{Name: name}
	for i := 0; i+1 < len(kvs); i += 2 {
		a = a.With(kvs[i], kvs[i+1])
	}
	return a
}

// With returns a copy of the action with an extra parameter. Empty values are skipped.
func (a Action) With(key, value string) Action {
	if value == "" {
		return a
	}
	params := make([]header, len(a.params), len(a.params)+1)
	copy(params, a.params)
	a.params = append(params, header{Key: key, Value: value})
	return a
}

// Get returns a parameter value, or empty string.
func (a Action) Get(key string) string {
	for _, p := range a.params {
		if strings.EqualFold(p.Key, key) {
			return p.Value
		}
	}
	return ""
}

// Params returns the parameters in insertion order.
func (a Action) Params() []header {
	return a.params
}

// Marshal renders the action in wire format with the given ActionID.
func (a Action) Marshal(actionID string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "Action: %s\r\n", a.Name)
	if actionID != "" {
		fmt.Fprintf(&b, "ActionID: %s\r\n", actionID)
	}
	for _, p := range a.params {
		// Header injection through CR/LF in user supplied values
		v := strings.NewReplacer("\r", "", "\n", "").Replace(p.Value)
		fmt.Fprintf(&b, "%s: %s\r\n", p.Key, v)
	}
	b.WriteString("\r\n")
	return b.Bytes()
}

func (a Action) String() string {
	return a.Name
}
