package model

// obfuscatedDigits is how many trailing characters are masked.
const obfuscatedDigits = 3

// Obfuscate masks the trailing digits of a phone number.
func Obfuscate(num string) string {
	if num == "" {
		return num
	}
	r := []rune(num)
	n := obfuscatedDigits
	if len(r) <= n {
		n = len(r)
	}
	for i := len(r) - n; i < len(r); i++ {
		r[i] = 'x'
	}
	return string(r)
}

func obfuscateChannel(ch Channel) Channel {
	ch.CallerNum = Obfuscate(ch.CallerNum)
	ch.ConnectedNum = Obfuscate(ch.ConnectedNum)
	return ch
}

// Obfuscated returns a copy with caller numbers masked.
func (c Conversation) Obfuscated() Conversation {
	c = c.Clone()
	c.Source = obfuscateChannel(c.Source)
	if c.Dest != nil {
		d := obfuscateChannel(*c.Dest)
		c.Dest = &d
	}
	c.CounterpartNum = Obfuscate(c.CounterpartNum)
	return c
}

func obfuscateConversations(in map[string]Conversation) map[string]Conversation {
	out := make(map[string]Conversation, len(in))
	for k, v := range in {
		out[k] = v.Obfuscated()
	}
	return out
}

// Obfuscated returns a copy with caller numbers masked.
func (e Extension) Obfuscated() Extension {
	e.Conversations = obfuscateConversations(e.Conversations)
	return e
}

// Obfuscated returns a copy with caller numbers masked.
func (t Trunk) Obfuscated() Trunk {
	t.Conversations = obfuscateConversations(t.Conversations)
	return t
}

// Obfuscated returns a copy with waiting caller numbers masked.
func (q Queue) Obfuscated() Queue {
	q = q.Clone()
	for k, w := range q.WaitingCallers {
		w.Num = Obfuscate(w.Num)
		q.WaitingCallers[k] = w
	}
	return q
}

// Obfuscated returns a copy with the parked caller number masked.
func (p Parking) Obfuscated() Parking {
	p = p.Clone()
	if p.Caller != nil {
		p.Caller.Num = Obfuscate(p.Caller.Num)
	}
	return p
}
