// Package authprompt implements the one-shot request/reply channel used to
// plumb interactive carrier authentication (phone number, SMS code, 2FA
// password, CAPTCHA image) out to whatever UI is wired in by the
// Application, without the transport ever blocking on anything but a
// channel receive.
package authprompt

import (
	"context"
	"errors"
)

// Kind identifies which interactive credential a Request is asking for.
type Kind int

const (
	// Phone asks for the phone number used to begin a Telegram user-mode
	// login (MTProto only; bot-token mode never prompts).
	Phone Kind = iota
	// Code asks for the SMS/Telegram login code sent after Phone.
	Code
	// Password asks for a Telegram two-factor-auth cloud password. The VK
	// transport never raises it: it logs in with vk_token only.
	Password
	// Captcha asks the user to solve an image CAPTCHA. Prompt carries the
	// URL of the challenge image.
	Captcha
)

// String renders a Kind for logging.
func (k Kind) String() string {
	switch k {
	case Phone:
		return "phone"
	case Code:
		return "code"
	case Password:
		return "password"
	case Captcha:
		return "captcha"
	default:
		return "unknown"
	}
}

// Reply is the UI's answer to a Request.
type Reply struct {
	Text      string
	Cancelled bool
}

// Request is a pending interactive prompt. The bring-up goroutine that
// creates one blocks in Await until the UI calls Resolve, or the caller's
// context is cancelled (treated the same as a user cancel).
type Request struct {
	Kind   Kind
	Prompt string

	reply chan Reply
}

// NewRequest creates a Request ready to be handed to a Handler.
func NewRequest(kind Kind, prompt string) *Request {
	return &Request{Kind: kind, Prompt: prompt, reply: make(chan Reply, 1)}
}

// Resolve delivers the UI's answer. Safe to call at most once; a second
// call is a no-op since the channel is already full.
func (r *Request) Resolve(reply Reply) {
	select {
	case r.reply <- reply:
	default:
	}
}

// Cancel is shorthand for Resolve(Reply{Cancelled: true}).
func (r *Request) Cancel() { r.Resolve(Reply{Cancelled: true}) }

// ErrCancelled is returned by Await when the user cancelled the prompt.
var ErrCancelled = errors.New("authprompt: cancelled by user")

// Await blocks until the UI resolves the request or ctx is done. A
// cancelled reply and a done context are both reported as ErrCancelled so
// callers have one error path to handle: bring-up fails, full stop.
func (r *Request) Await(ctx context.Context) (string, error) {
	select {
	case reply := <-r.reply:
		if reply.Cancelled {
			return "", ErrCancelled
		}
		return reply.Text, nil
	case <-ctx.Done():
		return "", ErrCancelled
	}
}

// Handler is supplied by the Application (and ultimately the UI) to answer
// interactive prompts raised during Transport.Init. It must not block
// forever without a way for the user to cancel; implementations typically
// surface the Request on a channel/signal and call Resolve from a UI
// event handler.
type Handler func(*Request)
