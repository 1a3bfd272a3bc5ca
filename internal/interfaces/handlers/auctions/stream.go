package auctions

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"atelier-backend/internal/application/broadcast"
	"atelier-backend/internal/domain"
	"atelier-backend/internal/middleware"
	"atelier-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

const defaultKeepAlive = 15 * time.Second

func writeEvent(w *bufio.Writer, s broadcast.Snapshot) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "id: %d\nevent: price\ndata: %s\n\n", s.Sequence, b); err != nil {
		return err
	}
	return w.Flush()
}

// Stream GET /api/v1/auctions/:auction_id/stream pushes price snapshots as
// server-sent events. The stream ends after the closing snapshot.
func (h *Handlers) Stream(c *fiber.Ctx) error {
	id, err := auctionID(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	// Subscribe before reading the auction so nothing published in between
	// is missed.
	ch, unsubscribe := h.Hub.Subscribe(id)
	a, err := h.Engine.GetAuction(c.Context(), id)
	if err != nil {
		unsubscribe()
		return middleware.Fail(c, err)
	}
	first := broadcast.SnapshotOf(a, time.Now().UTC())

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	if a.State == domain.AuctionClosed {
		unsubscribe()
		b, _ := json.Marshal(first)
		return c.SendString(fmt.Sprintf("id: %d\nevent: price\ndata: %s\n\n", first.Sequence, b))
	}

	keepAlive := h.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	traceID := middleware.GetTraceID(c)
	done := h.Done

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()
		last := first.Sequence
		if err := writeEvent(w, first); err != nil {
			return
		}
		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case s, ok := <-ch:
				if !ok {
					return
				}
				if s.Sequence <= last {
					continue
				}
				last = s.Sequence
				if err := writeEvent(w, s); err != nil {
					log.Debug().Err(err).Str("trace_id", traceID).Msg("price stream client gone")
					return
				}
				if s.State == domain.AuctionClosed {
					return
				}
			case <-ticker.C:
				if _, err := w.WriteString(": keep-alive\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})
	return nil
}
