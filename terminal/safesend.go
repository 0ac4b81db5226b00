package terminal

// SafeSend is the backpressure-aware send gate (§4.4 "Output send
// gate"). If client's buffered bytes exceed the configured maximum, the
// message is not sent; the connection is closed with 4008 and the
// record's dropped-message counter is incremented. Otherwise the
// message is serialized and sent, with send errors swallowed — the
// caller is expected to observe the eventual disconnect rather than an
// error return (§7 "Send failures").
func (reg *Registry) SafeSend(client ClientConn, msg interface{}, record *Record) {
	limit := reg.settings.MaxWSBufferedAmount
	if limit > 0 && client.BufferedAmount() > limit {
		if record != nil {
			record.mu.Lock()
			record.perf.DroppedMessages++
			record.mu.Unlock()
		}
		_ = client.Close(4008, "Backpressure")
		return
	}
	_ = client.WriteJSON(msg)
}

// safeSendLocked is SafeSend's send logic for a caller that already
// holds record.mu (FinishAttachSnapshot's atomic queue flush, §4.4).
// It must never itself lock record.mu.
func (reg *Registry) safeSendLocked(client ClientConn, msg interface{}, record *Record) {
	limit := reg.settings.MaxWSBufferedAmount
	if limit > 0 && client.BufferedAmount() > limit {
		if record != nil {
			record.perf.DroppedMessages++
		}
		_ = client.Close(4008, "Backpressure")
		return
	}
	_ = client.WriteJSON(msg)
}
