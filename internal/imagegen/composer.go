package imagegen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// RefusalPolicy decides what a provider refusal after the first step does
// to the whole composition.
type RefusalPolicy string

const (
	// RefusalAbort fails the composition.
	RefusalAbort RefusalPolicy = "abort"
	// RefusalPartial returns the image composed so far, marked partial.
	RefusalPartial RefusalPolicy = "partial"
)

// ParseRefusalPolicy maps a config value to a policy. Empty means abort.
func ParseRefusalPolicy(raw string) (RefusalPolicy, error) {
	switch RefusalPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", RefusalAbort:
		return RefusalAbort, nil
	case RefusalPartial:
		return RefusalPartial, nil
	}
	return "", fmt.Errorf("unknown refusal policy %q", raw)
}

// ComposerOptions configures a Composer.
type ComposerOptions struct {
	Editor          Editor
	Policy          RefusalPolicy
	StepTimeout     time.Duration
	LookParallelism int
	Cancel          CancelChecker
	Logger          *zerolog.Logger
}

// Composer runs compositions as a strict sequence of provider edits. It
// holds no per-request state and is safe for concurrent use.
type Composer struct {
	editor      Editor
	policy      RefusalPolicy
	stepTimeout time.Duration
	parallelism int
	cancel      CancelChecker
	logger      zerolog.Logger
}

// NewComposer validates opts and builds a Composer.
func NewComposer(opts ComposerOptions) (*Composer, error) {
	if opts.Editor == nil {
		return nil, errors.New("imagegen: editor is required")
	}
	policy := opts.Policy
	if policy == "" {
		policy = RefusalAbort
	}
	if policy != RefusalAbort && policy != RefusalPartial {
		return nil, fmt.Errorf("imagegen: unknown refusal policy %q", policy)
	}
	parallelism := opts.LookParallelism
	if parallelism <= 0 {
		parallelism = 2
	}
	logger := zerolog.New(io.Discard)
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Composer{
		editor:      opts.Editor,
		policy:      policy,
		stepTimeout: opts.StepTimeout,
		parallelism: parallelism,
		cancel:      opts.Cancel,
		logger:      logger,
	}, nil
}

// Policy returns the configured refusal policy.
func (c *Composer) Policy() RefusalPolicy {
	return c.policy
}

func validateRequest(req CompositionRequest) ([]GarmentSlot, error) {
	if req.Base == nil || req.Base.Empty() {
		return nil, invalidf("base image is required")
	}
	if strings.TrimSpace(req.Base.ContentType) == "" {
		return nil, invalidf("base image content type is required")
	}
	active := make([]GarmentSlot, 0, len(req.Slots))
	for i, slot := range req.Slots {
		if !slot.Present() {
			continue
		}
		if _, ok := knownSlots[slot.ID]; !ok {
			return nil, invalidf("slot %d: unknown garment slot %q", i, slot.ID)
		}
		if slot.Image != nil && !slot.Image.Empty() && strings.TrimSpace(slot.Image.ContentType) == "" {
			return nil, invalidf("slot %d: image content type is required", i)
		}
		active = append(active, slot)
	}
	return active, nil
}

// Compose dresses the base image in every present slot, one provider call
// per slot in declared order. Each call's output is the next call's base.
func (c *Composer) Compose(ctx context.Context, req CompositionRequest) (CompositionResult, error) {
	steps, err := validateRequest(req)
	if err != nil {
		return CompositionResult{}, err
	}
	current := *req.Base
	result := CompositionResult{Image: current, StepsPlanned: len(steps)}
	if len(steps) == 0 {
		return result, nil
	}

	log := c.logger.With().
		Str("request_id", req.RequestID).
		Str("provider", c.editor.Name()).
		Int("steps", len(steps)).
		Logger()

	for i, slot := range steps {
		step := i + 1
		if err := c.checkCanceled(ctx, req.RequestID); err != nil {
			return CompositionResult{}, &StepError{Step: step, Slot: slot.ID, Err: err}
		}

		edit := EditRequest{
			Images: []ImageRef{current},
			Instruction: BuildStepInstruction(StepInput{
				Slot:      slot,
				Guidance:  req.Guidance,
				FirstStep: i == 0,
			}),
			Options: req.Options,
		}
		if hasImage(slot) {
			edit.Images = append(edit.Images, *slot.Image)
		}
		if edit.Options.NegativePrompt == "" {
			edit.Options.NegativePrompt = strings.TrimSpace(req.Guidance.Negative)
		}

		start := time.Now()
		out, err := c.runStep(ctx, edit)
		if err != nil {
			stepErr := &StepError{Step: step, Slot: slot.ID, Err: err}
			if errors.Is(err, ErrProviderRefused) && c.policy == RefusalPartial && i > 0 {
				log.Warn().Err(err).Int("step", step).Str("slot", string(slot.ID)).Msg("compose: refused, returning partial result")
				result.Image = current
				result.Partial = true
				result.StopReason = stepErr
				result.StoppedAt = slot.ID
				return result, nil
			}
			log.Error().Err(err).Int("step", step).Str("slot", string(slot.ID)).Msg("compose: step failed")
			return CompositionResult{}, stepErr
		}
		log.Debug().Int("step", step).Str("slot", string(slot.ID)).Dur("took", time.Since(start)).Msg("compose: step done")
		current = out
		result.StepsCompleted = step
	}

	if err := c.checkCanceled(ctx, req.RequestID); err != nil {
		last := steps[len(steps)-1]
		return CompositionResult{}, &StepError{Step: len(steps), Slot: last.ID, Err: err}
	}
	result.Image = current
	return result, nil
}

// ComposeSingle runs the one-call prompt refinement variant: the first
// present slot must carry a garment image.
func (c *Composer) ComposeSingle(ctx context.Context, req CompositionRequest) (CompositionResult, error) {
	steps, err := validateRequest(req)
	if err != nil {
		return CompositionResult{}, err
	}
	if len(steps) == 0 || !hasImage(steps[0]) {
		return CompositionResult{}, invalidf("a garment image is required")
	}
	slot := steps[0]
	if err := c.checkCanceled(ctx, req.RequestID); err != nil {
		return CompositionResult{}, &StepError{Step: 1, Slot: slot.ID, Err: err}
	}
	edit := EditRequest{
		Images:      []ImageRef{*req.Base, *slot.Image},
		Instruction: BuildSingleStepInstruction(req.Guidance),
		Options:     req.Options,
	}
	if edit.Options.NegativePrompt == "" {
		edit.Options.NegativePrompt = strings.TrimSpace(req.Guidance.Negative)
	}
	out, err := c.runStep(ctx, edit)
	if err != nil {
		return CompositionResult{}, &StepError{Step: 1, Slot: slot.ID, Err: err}
	}
	return CompositionResult{Image: out, StepsCompleted: 1, StepsPlanned: 1}, nil
}

// Look is one independent single-garment composition.
type Look struct {
	Slot   SlotID
	Result CompositionResult
	Err    error
}

// ComposeLooks composes one look per present slot, concurrently. A failed
// look does not stop the others.
func (c *Composer) ComposeLooks(ctx context.Context, req CompositionRequest) ([]Look, error) {
	steps, err := validateRequest(req)
	if err != nil {
		return nil, err
	}
	looks := make([]Look, len(steps))
	var g errgroup.Group
	g.SetLimit(c.parallelism)
	for i, slot := range steps {
		looks[i].Slot = slot.ID
		g.Go(func() error {
			single := req
			single.Slots = []GarmentSlot{slot}
			res, err := c.Compose(ctx, single)
			looks[i].Result = res
			looks[i].Err = err
			return nil
		})
	}
	_ = g.Wait()
	return looks, nil
}

func (c *Composer) runStep(ctx context.Context, req EditRequest) (ImageRef, error) {
	stepCtx := ctx
	if c.stepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, c.stepTimeout)
		defer cancel()
	}
	out, err := c.editor.Edit(stepCtx, req)
	if err == nil && out.Empty() {
		err = Refused(c.editor.Name(), "empty image")
	}
	if err == nil {
		return out, nil
	}
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return ImageRef{}, fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
	case errors.Is(stepCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrProviderTransport):
		return ImageRef{}, Transport(c.editor.Name(), 0, fmt.Errorf("step timed out: %w", err))
	case errors.Is(err, ErrProviderRefused), errors.Is(err, ErrProviderTransport),
		errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrMalformedInput):
		return ImageRef{}, err
	}
	return ImageRef{}, Transport(c.editor.Name(), 0, err)
}

func (c *Composer) checkCanceled(ctx context.Context, requestID string) error {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Transport(c.editor.Name(), 0, err)
		}
		return fmt.Errorf("%w: %w", ErrCanceled, err)
	}
	if c.cancel == nil || requestID == "" {
		return nil
	}
	canceled, err := c.cancel.Canceled(ctx, requestID)
	if err != nil {
		c.logger.Warn().Err(err).Str("request_id", requestID).Msg("compose: cancel lookup failed")
		return nil
	}
	if canceled {
		return ErrCanceled
	}
	return nil
}
