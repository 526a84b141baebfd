package providers

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/maykecorrea/dressup/internal/imagegen"
)

// Throttle limits how often the wrapped editor is called across all requests.
type Throttle struct {
	next    imagegen.Editor
	limiter *rate.Limiter
}

// NewThrottle allows perMinute edit calls per minute. A non-positive value
// disables throttling and returns next unchanged.
func NewThrottle(next imagegen.Editor, perMinute int) imagegen.Editor {
	if perMinute <= 0 {
		return next
	}
	every := rate.Every(time.Minute / time.Duration(perMinute))
	return &Throttle{next: next, limiter: rate.NewLimiter(every, perMinute)}
}

func (t *Throttle) Name() string {
	return t.next.Name()
}

// Edit waits for a token before delegating. Waiting past the step deadline
// surfaces as a transport failure.
func (t *Throttle) Edit(ctx context.Context, req imagegen.EditRequest) (imagegen.ImageRef, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		if ctx.Err() == context.Canceled {
			return imagegen.ImageRef{}, ctx.Err()
		}
		return imagegen.ImageRef{}, imagegen.Transport(t.next.Name(), 0, err)
	}
	return t.next.Edit(ctx, req)
}
