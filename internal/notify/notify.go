// Package notify delivers state-change messages to users. Delivery is
// best-effort and fire-and-forget: a failed send is counted and logged, never
// propagated into the mutation that triggered it.
package notify

import "log/slog"

// Sender is the chat transport boundary for outbound delivery.
type Sender interface {
	SendMessage(userID int64, text string) error
	SendSticker(userID int64, stickerID string) error
	SendDocument(userID int64, path, caption string) error
}

// Summary reports a fan-out result for admin-facing display.
type Summary struct {
	Delivered int
	Failed    int
}

type Dispatcher struct {
	sender Sender
	log    *slog.Logger
}

func New(sender Sender, log *slog.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, log: log}
}

// Send delivers one message, swallowing the error. Returns whether it went out.
func (d *Dispatcher) Send(userID int64, text string) bool {
	if err := d.sender.SendMessage(userID, text); err != nil {
		d.log.Debug("notify: send failed", "user", userID, "err", err)
		return false
	}
	return true
}

// SendSticker delivers a sticker, falling back to the given text (usually an
// emoji) when the sticker fails.
func (d *Dispatcher) SendSticker(userID int64, stickerID, fallback string) {
	if stickerID != "" {
		if err := d.sender.SendSticker(userID, stickerID); err == nil {
			return
		}
	}
	d.Send(userID, fallback)
}

// SendDocument attaches a file, swallowing the error.
func (d *Dispatcher) SendDocument(userID int64, path, caption string) bool {
	if err := d.sender.SendDocument(userID, path, caption); err != nil {
		d.log.Debug("notify: send document failed", "user", userID, "err", err)
		return false
	}
	return true
}

// Broadcast fans the same text out to every listed user. One failed attempt
// never aborts the rest.
func (d *Dispatcher) Broadcast(userIDs []int64, text string) Summary {
	var sum Summary
	for _, id := range userIDs {
		if d.Send(id, text) {
			sum.Delivered++
		} else {
			sum.Failed++
		}
	}
	return sum
}
