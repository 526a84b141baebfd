package imagegen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"
)

type editCall struct {
	base        ImageRef
	images      []ImageRef
	instruction string
	options     EditOptions
}

// scriptedEditor returns queued results in order; each output image is
// tagged with the call number so tests can follow the chain.
type scriptedEditor struct {
	mu      sync.Mutex
	calls   []editCall
	results []error
	block   bool
}

func (s *scriptedEditor) Name() string { return "scripted" }

func (s *scriptedEditor) Edit(ctx context.Context, req EditRequest) (ImageRef, error) {
	s.mu.Lock()
	n := len(s.calls)
	s.calls = append(s.calls, editCall{base: req.Images[0], images: req.Images, instruction: req.Instruction, options: req.Options})
	var err error
	if n < len(s.results) {
		err = s.results[n]
	}
	block := s.block
	s.mu.Unlock()
	if block {
		<-ctx.Done()
		return ImageRef{}, ctx.Err()
	}
	if err != nil {
		return ImageRef{}, err
	}
	return ImageRef{Data: []byte(fmt.Sprintf("out-%d", n+1)), ContentType: "image/png"}, nil
}

func (s *scriptedEditor) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func img(name string) *ImageRef {
	return &ImageRef{Data: []byte(name), ContentType: "image/png"}
}

func newTestComposer(t *testing.T, editor Editor, policy RefusalPolicy) *Composer {
	t.Helper()
	c, err := NewComposer(ComposerOptions{Editor: editor, Policy: policy})
	if err != nil {
		t.Fatalf("NewComposer error: %v", err)
	}
	return c
}

func TestComposeWithoutSlotsReturnsBase(t *testing.T) {
	editor := &scriptedEditor{}
	c := newTestComposer(t, editor, RefusalAbort)
	base := img("model")

	res, err := c.Compose(context.Background(), CompositionRequest{
		Base:  base,
		Slots: []GarmentSlot{{ID: SlotTop}, {ID: SlotShoes, Description: "   "}},
	})
	if err != nil {
		t.Fatalf("Compose error: %v", err)
	}
	if editor.callCount() != 0 {
		t.Fatalf("expected no provider calls, got %d", editor.callCount())
	}
	if !bytes.Equal(res.Image.Data, base.Data) || res.Image.ContentType != base.ContentType {
		t.Fatalf("base should be returned unchanged, got %q", res.Image.Data)
	}
	if res.Partial || res.StepsPlanned != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestComposeSingleGarment(t *testing.T) {
	editor := &scriptedEditor{}
	c := newTestComposer(t, editor, RefusalAbort)

	res, err := c.Compose(context.Background(), CompositionRequest{
		Base:  img("M"),
		Slots: []GarmentSlot{{ID: SlotTop, Image: img("T")}},
	})
	if err != nil {
		t.Fatalf("Compose error: %v", err)
	}
	if editor.callCount() != 1 {
		t.Fatalf("calls = %d, want 1", editor.callCount())
	}
	call := editor.calls[0]
	if string(call.base.Data) != "M" {
		t.Fatalf("base = %q, want M", call.base.Data)
	}
	if len(call.images) != 2 || string(call.images[1].Data) != "T" {
		t.Fatalf("primary garment not passed: %+v", call.images)
	}
	if string(res.Image.Data) != "out-1" {
		t.Fatalf("result = %q, want out-1", res.Image.Data)
	}
	if res.StepsCompleted != 1 || res.StepsPlanned != 1 || res.Partial {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestComposeChainsBaseThroughSteps(t *testing.T) {
	editor := &scriptedEditor{}
	c := newTestComposer(t, editor, RefusalAbort)

	res, err := c.Compose(context.Background(), CompositionRequest{
		Base: img("M"),
		Slots: []GarmentSlot{
			{ID: SlotTop, Image: img("T")},
			{ID: SlotPants, Image: img("P")},
			{ID: SlotShoes, Image: img("S")},
		},
		Guidance: StyleGuidance{Negative: "extra fingers"},
	})
	if err != nil {
		t.Fatalf("Compose error: %v", err)
	}
	if editor.callCount() != 3 {
		t.Fatalf("calls = %d, want 3", editor.callCount())
	}
	wantBases := []string{"M", "out-1", "out-2"}
	wantGarments := []string{"T", "P", "S"}
	for i, call := range editor.calls {
		if string(call.base.Data) != wantBases[i] {
			t.Fatalf("call %d base = %q, want %q", i+1, call.base.Data, wantBases[i])
		}
		if string(call.images[1].Data) != wantGarments[i] {
			t.Fatalf("call %d garment = %q, want %q", i+1, call.images[1].Data, wantGarments[i])
		}
		if call.options.NegativePrompt != "extra fingers" {
			t.Fatalf("call %d negative prompt = %q", i+1, call.options.NegativePrompt)
		}
	}
	if editor.calls[0].instruction == editor.calls[1].instruction {
		t.Fatalf("first and later steps should use different instructions")
	}
	if string(res.Image.Data) != "out-3" || res.StepsCompleted != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestComposeMissingBase(t *testing.T) {
	c := newTestComposer(t, &scriptedEditor{}, RefusalAbort)
	_, err := c.Compose(context.Background(), CompositionRequest{Slots: []GarmentSlot{{ID: SlotTop, Image: img("T")}}})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestComposeUnknownSlot(t *testing.T) {
	editor := &scriptedEditor{}
	c := newTestComposer(t, editor, RefusalAbort)
	_, err := c.Compose(context.Background(), CompositionRequest{
		Base:  img("M"),
		Slots: []GarmentSlot{{ID: "hat", Description: "beanie"}},
	})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if editor.callCount() != 0 {
		t.Fatalf("no call expected for invalid request")
	}
}

func threeSlots() []GarmentSlot {
	return []GarmentSlot{
		{ID: SlotTop, Image: img("T")},
		{ID: SlotPants, Image: img("P")},
		{ID: SlotShoes, Image: img("S")},
	}
}

func TestComposeRefusalPolicyIsDeterministic(t *testing.T) {
	refusal := Refused("scripted", "content policy")
	for _, policy := range []RefusalPolicy{RefusalAbort, RefusalPartial} {
		for run := 0; run < 5; run++ {
			editor := &scriptedEditor{results: []error{nil, refusal}}
			c := newTestComposer(t, editor, policy)
			res, err := c.Compose(context.Background(), CompositionRequest{Base: img("M"), Slots: threeSlots()})
			switch policy {
			case RefusalAbort:
				var stepErr *StepError
				if !errors.As(err, &stepErr) {
					t.Fatalf("abort run %d: expected StepError, got %v", run, err)
				}
				if stepErr.Step != 2 || stepErr.Slot != SlotPants {
					t.Fatalf("abort run %d: step = %d slot = %s", run, stepErr.Step, stepErr.Slot)
				}
				if !errors.Is(err, ErrProviderRefused) || Retryable(err) {
					t.Fatalf("abort run %d: refusal should not be retryable: %v", run, err)
				}
			case RefusalPartial:
				if err != nil {
					t.Fatalf("partial run %d: unexpected error %v", run, err)
				}
				if !res.Partial || res.StepsCompleted != 1 || res.StoppedAt != SlotPants {
					t.Fatalf("partial run %d: unexpected result %+v", run, res)
				}
				if string(res.Image.Data) != "out-1" {
					t.Fatalf("partial run %d: image = %q, want out-1", run, res.Image.Data)
				}
				if !errors.Is(res.StopReason, ErrProviderRefused) {
					t.Fatalf("partial run %d: stop reason = %v", run, res.StopReason)
				}
			}
			if editor.callCount() != 2 {
				t.Fatalf("%s run %d: calls = %d, want 2", policy, run, editor.callCount())
			}
		}
	}
}

func TestComposePartialPolicyAbortsOnFirstStep(t *testing.T) {
	editor := &scriptedEditor{results: []error{Refused("scripted", "blocked")}}
	c := newTestComposer(t, editor, RefusalPartial)
	_, err := c.Compose(context.Background(), CompositionRequest{Base: img("M"), Slots: threeSlots()})
	if !errors.Is(err, ErrProviderRefused) {
		t.Fatalf("expected refusal error, got %v", err)
	}
}

func TestComposeTransportErrorNotRetried(t *testing.T) {
	editor := &scriptedEditor{results: []error{nil, Transport("scripted", 503, errors.New("unavailable"))}}
	c := newTestComposer(t, editor, RefusalPartial)
	_, err := c.Compose(context.Background(), CompositionRequest{Base: img("M"), Slots: threeSlots()})
	if !Retryable(err) {
		t.Fatalf("transport error should be retryable, got %v", err)
	}
	if editor.callCount() != 2 {
		t.Fatalf("calls = %d, want 2", editor.callCount())
	}
}

func TestComposeUnknownEditorErrorIsTransport(t *testing.T) {
	editor := &scriptedEditor{results: []error{errors.New("boom")}}
	c := newTestComposer(t, editor, RefusalAbort)
	_, err := c.Compose(context.Background(), CompositionRequest{Base: img("M"), Slots: threeSlots()})
	if KindOf(err) != KindProviderTransport {
		t.Fatalf("kind = %q, want provider_transport", KindOf(err))
	}
}

func TestComposeStepTimeoutIsTransport(t *testing.T) {
	editor := &scriptedEditor{block: true}
	c, err := NewComposer(ComposerOptions{Editor: editor, StepTimeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewComposer error: %v", err)
	}
	_, err = c.Compose(context.Background(), CompositionRequest{Base: img("M"), Slots: threeSlots()})
	if !errors.Is(err, ErrProviderTransport) {
		t.Fatalf("expected transport error on timeout, got %v", err)
	}
	if editor.callCount() != 1 {
		t.Fatalf("calls = %d, want 1", editor.callCount())
	}
}

type flagCanceler struct {
	mu      sync.Mutex
	after   int
	checks  int
	lastID  string
	lookErr error
}

func (f *flagCanceler) Canceled(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	f.lastID = id
	if f.lookErr != nil {
		return false, f.lookErr
	}
	return f.checks > f.after, nil
}

func TestComposeCanceledBetweenSteps(t *testing.T) {
	editor := &scriptedEditor{}
	canceler := &flagCanceler{after: 1}
	c, err := NewComposer(ComposerOptions{Editor: editor, Cancel: canceler})
	if err != nil {
		t.Fatalf("NewComposer error: %v", err)
	}
	res, err := c.Compose(context.Background(), CompositionRequest{RequestID: "req-1", Base: img("M"), Slots: threeSlots()})
	if !errors.Is(err, ErrCanceled) {
		t.Fatalf("expected ErrCanceled, got %v", err)
	}
	if KindOf(err) != KindCanceled {
		t.Fatalf("kind = %q", KindOf(err))
	}
	if !res.Image.Empty() {
		t.Fatalf("canceled composition must not return an image")
	}
	if editor.callCount() != 1 {
		t.Fatalf("calls = %d, want 1", editor.callCount())
	}
	if canceler.lastID != "req-1" {
		t.Fatalf("cancel checked for %q", canceler.lastID)
	}
}

func TestComposeCancelLookupErrorIgnored(t *testing.T) {
	editor := &scriptedEditor{}
	c, err := NewComposer(ComposerOptions{Editor: editor, Cancel: &flagCanceler{lookErr: errors.New("redis down")}})
	if err != nil {
		t.Fatalf("NewComposer error: %v", err)
	}
	if _, err := c.Compose(context.Background(), CompositionRequest{RequestID: "r", Base: img("M"), Slots: threeSlots()}); err != nil {
		t.Fatalf("Compose error: %v", err)
	}
}

func TestComposeContextCanceled(t *testing.T) {
	editor := &scriptedEditor{}
	c := newTestComposer(t, editor, RefusalAbort)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Compose(ctx, CompositionRequest{Base: img("M"), Slots: threeSlots()})
	if !errors.Is(err, ErrCanceled) {
		t.Fatalf("expected ErrCanceled, got %v", err)
	}
	if editor.callCount() != 0 {
		t.Fatalf("no call expected after cancellation")
	}
}

func TestComposeLooks(t *testing.T) {
	editor := &scriptedEditor{}
	c, err := NewComposer(ComposerOptions{Editor: editor, LookParallelism: 3})
	if err != nil {
		t.Fatalf("NewComposer error: %v", err)
	}
	looks, err := c.ComposeLooks(context.Background(), CompositionRequest{Base: img("M"), Slots: threeSlots()})
	if err != nil {
		t.Fatalf("ComposeLooks error: %v", err)
	}
	if len(looks) != 3 {
		t.Fatalf("looks = %d, want 3", len(looks))
	}
	want := []SlotID{SlotTop, SlotPants, SlotShoes}
	for i, look := range looks {
		if look.Slot != want[i] {
			t.Fatalf("look %d slot = %s, want %s", i, look.Slot, want[i])
		}
		if look.Err != nil || look.Result.StepsCompleted != 1 {
			t.Fatalf("look %d unexpected %+v", i, look)
		}
	}
	var garments []string
	for _, call := range editor.calls {
		if string(call.base.Data) != "M" {
			t.Fatalf("every look starts from the original base, got %q", call.base.Data)
		}
		garments = append(garments, string(call.images[1].Data))
	}
	sort.Strings(garments)
	if fmt.Sprint(garments) != "[P S T]" {
		t.Fatalf("garments = %v", garments)
	}
}

func TestComposeSingleRequiresGarmentImage(t *testing.T) {
	editor := &scriptedEditor{}
	c := newTestComposer(t, editor, RefusalAbort)
	_, err := c.ComposeSingle(context.Background(), CompositionRequest{
		Base:  img("M"),
		Slots: []GarmentSlot{{ID: SlotTop, Description: "red shirt"}},
	})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}

	res, err := c.ComposeSingle(context.Background(), CompositionRequest{
		Base:     img("M"),
		Slots:    []GarmentSlot{{ID: SlotTop, Image: img("T")}},
		Guidance: StyleGuidance{Positive: "realistic shading"},
	})
	if err != nil {
		t.Fatalf("ComposeSingle error: %v", err)
	}
	if string(res.Image.Data) != "out-1" || editor.callCount() != 1 {
		t.Fatalf("unexpected result %+v calls=%d", res, editor.callCount())
	}
}

func TestParseRefusalPolicy(t *testing.T) {
	tests := map[string]RefusalPolicy{"": RefusalAbort, "abort": RefusalAbort, " Partial ": RefusalPartial}
	for in, want := range tests {
		got, err := ParseRefusalPolicy(in)
		if err != nil || got != want {
			t.Fatalf("ParseRefusalPolicy(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseRefusalPolicy("retry"); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}
