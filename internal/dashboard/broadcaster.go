package dashboard

import (
	"strconv"
	"time"
)

// broadcast stores data as the channel's latest value and sends the
// envelope to every client. A client whose buffer is full misses the
// message; the per-channel seq lets it detect and backfill the gap.
func (h *Hub) broadcast(channel string, data []byte, srcTS time.Time) {
	now := time.Now().UTC()
	if !srcTS.IsZero() {
		if ms := float64(now.Sub(srcTS).Microseconds()) / 1000.0; ms >= 0 {
			h.Latency.Record(ms)
		}
	}

	h.mu.Lock()
	h.channelSeqs[channel]++
	channelSeq := h.channelSeqs[channel]
	h.seq++
	seq := h.seq
	h.latest[channel] = latestEntry{Data: data, TS: now, Seq: channelSeq}
	rb, ok := h.replayBufs[channel]
	if !ok {
		rb = NewReplayBuffer(replayPerChannel)
		h.replayBufs[channel] = rb
	}
	h.mu.Unlock()

	buf := envelope(channel, data, now, seq, channelSeq, false)
	rb.Push(channelSeq, buf)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- buf:
		default:
			if h.OnDrop != nil {
				h.OnDrop()
			}
		}
	}
}

// envelope hand-builds the message JSON; data must already be valid JSON.
func envelope(channel string, data []byte, ts time.Time, seq, channelSeq int64, initial bool) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+128)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = ts.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	if initial {
		buf = append(buf, `,"initial":true`...)
	}
	buf = append(buf, '}')
	return buf
}
