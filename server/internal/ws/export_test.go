package ws

// Broadcast runs one broadcast synchronously.
func (h *Hub) Broadcast() { h.broadcast() }
