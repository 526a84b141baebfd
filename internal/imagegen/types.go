package imagegen

import (
	"context"
	"strings"
)

// ImageRef is image bytes plus the content type they are encoded in.
type ImageRef struct {
	Data        []byte
	ContentType string
}

// Empty reports whether the reference carries no bytes.
func (r ImageRef) Empty() bool {
	return len(r.Data) == 0
}

// SlotID identifies a garment category. Slot order in a request decides
// step order, the ID only labels the step.
type SlotID string

const (
	SlotTop       SlotID = "top"
	SlotPants     SlotID = "pants"
	SlotCoat      SlotID = "coat"
	SlotShoes     SlotID = "shoes"
	SlotAccessory SlotID = "accessory"
	SlotLook      SlotID = "look"
)

var knownSlots = map[SlotID]struct{}{
	SlotTop:       {},
	SlotPants:     {},
	SlotCoat:      {},
	SlotShoes:     {},
	SlotAccessory: {},
	SlotLook:      {},
}

// ParseSlotID normalizes a user supplied slot name.
func ParseSlotID(raw string) (SlotID, bool) {
	id := SlotID(strings.ToLower(strings.TrimSpace(raw)))
	switch id {
	case "garment", "main", "shirt":
		id = SlotTop
	case "cold_weather", "jacket":
		id = SlotCoat
	case "necklace":
		id = SlotAccessory
	}
	_, ok := knownSlots[id]
	return id, ok
}

// GarmentSlot is one garment input. A slot with neither an image nor a
// description is absent.
type GarmentSlot struct {
	ID          SlotID
	Image       *ImageRef
	Description string
}

// Present reports whether the slot has anything to render.
func (s GarmentSlot) Present() bool {
	return (s.Image != nil && !s.Image.Empty()) || strings.TrimSpace(s.Description) != ""
}

// StyleGuidance carries free-text prompt refinements. Empty strings mean no guidance.
type StyleGuidance struct {
	Positive    string
	Negative    string
	CustomStyle string
}

// EditOptions are provider call options. Providers ignore the ones they
// cannot express.
type EditOptions struct {
	Size           string
	AspectRatio    string
	Quality        string
	InputFidelity  string
	NegativePrompt string
}

// CompositionRequest is the input of Composer.Compose.
type CompositionRequest struct {
	RequestID string
	Base      *ImageRef
	Slots     []GarmentSlot
	Guidance  StyleGuidance
	Options   EditOptions
}

// CompositionResult is the outcome of a composition. Partial is set only
// when the refusal policy stopped the sequence early; StopReason then holds
// the refusal.
type CompositionResult struct {
	Image          ImageRef
	Partial        bool
	StepsCompleted int
	StepsPlanned   int
	StopReason     error
	StoppedAt      SlotID
}

// DescriptionResult binds a garment description to the image it describes.
type DescriptionResult struct {
	Description string
	Language    string
	Image       ImageRef
}

// EditRequest is a single provider call. Images[0] is the base image, the
// remaining entries are auxiliary references in order.
type EditRequest struct {
	Images      []ImageRef
	Instruction string
	Options     EditOptions
}

// Editor performs one image edit against an external provider.
type Editor interface {
	Name() string
	Edit(ctx context.Context, req EditRequest) (ImageRef, error)
}

// VisionModel returns a free-text answer about an image.
type VisionModel interface {
	DescribeImage(ctx context.Context, img ImageRef, prompt string) (string, error)
}

// JSONModel answers a prompt with a JSON document.
type JSONModel interface {
	GenerateJSON(ctx context.Context, prompt string, images ...ImageRef) (string, error)
}

// CancelChecker reports whether a caller asked to stop the given request.
type CancelChecker interface {
	Canceled(ctx context.Context, requestID string) (bool, error)
}
