package pbx

import "github.com/sweeney/asterisk-proxy/internal/model"

// Read accessors for the outer layers. Each returns a copy of the full map;
// with obfuscate set, the trailing digits of every phone number are masked.

func (e *Engine) Extensions(obfuscate bool) map[string]model.Extension {
	out := e.store.Extensions()
	if obfuscate {
		for id, x := range out {
			out[id] = x.Obfuscated()
		}
	}
	return out
}

// Extension returns one extension, or ErrEndpointNotFound.
func (e *Engine) Extension(id string, obfuscate bool) (model.Extension, error) {
	x, ok := e.store.Extension(id)
	if !ok {
		return x, ErrEndpointNotFound
	}
	if obfuscate {
		x = x.Obfuscated()
	}
	return x, nil
}

func (e *Engine) Trunks(obfuscate bool) map[string]model.Trunk {
	out := e.store.Trunks()
	if obfuscate {
		for id, t := range out {
			out[id] = t.Obfuscated()
		}
	}
	return out
}

func (e *Engine) Queues(obfuscate bool) map[string]model.Queue {
	out := e.store.Queues()
	if obfuscate {
		for id, q := range out {
			out[id] = q.Obfuscated()
		}
	}
	return out
}

// Queue returns one queue, or ErrQueueNotFound.
func (e *Engine) Queue(id string, obfuscate bool) (model.Queue, error) {
	q, ok := e.store.Queue(id)
	if !ok {
		return q, ErrQueueNotFound
	}
	if obfuscate {
		q = q.Obfuscated()
	}
	return q, nil
}

func (e *Engine) Parkings(obfuscate bool) map[string]model.Parking {
	out := e.store.Parkings()
	if obfuscate {
		for id, p := range out {
			out[id] = p.Obfuscated()
		}
	}
	return out
}
