package imagegen

import (
	"fmt"
	"strings"
)

const identityRule = "INVIOLABLE RULE: the person, face, hair, body and pose in the result MUST be identical to the first image."

// StepInput is everything that shapes one step's instruction.
type StepInput struct {
	Slot      GarmentSlot
	Guidance  StyleGuidance
	FirstStep bool
}

func slotNoun(id SlotID) string {
	switch id {
	case SlotTop:
		return "garment"
	case SlotPants:
		return "pants"
	case SlotCoat:
		return "coat or jacket"
	case SlotShoes:
		return "shoes"
	case SlotAccessory:
		return "accessory"
	case SlotLook:
		return "complete look"
	}
	return "item"
}

func hasImage(slot GarmentSlot) bool {
	return slot.Image != nil && !slot.Image.Empty()
}

// BuildStepInstruction renders the instruction for one composition step.
// The identity rule and the negative guide are always present.
func BuildStepInstruction(in StepInput) string {
	noun := slotNoun(in.Slot.ID)
	desc := strings.TrimSpace(in.Slot.Description)
	parts := []string{}
	if in.FirstStep {
		if hasImage(in.Slot) {
			parts = append(parts, fmt.Sprintf("Dress the person in the first image in the %s shown in the second image.", noun))
		} else {
			parts = append(parts, fmt.Sprintf("Dress the person in the first image in the following %s: %s.", noun, desc))
		}
		parts = append(parts, identityRule, "Only replace the clothing.")
	} else {
		parts = append(parts, "Use the first image as the base.", identityRule, "DO NOT alter the person, face, hair or pose.")
		if hasImage(in.Slot) {
			parts = append(parts, fmt.Sprintf("Only add the %s shown in the second image.", noun))
		} else {
			parts = append(parts, fmt.Sprintf("Only add the following %s: %s.", noun, desc))
		}
	}
	if hasImage(in.Slot) && desc != "" {
		parts = append(parts, "Item details: "+desc+".")
	}
	parts = append(parts, guidanceLines(in.Guidance)...)
	return strings.Join(parts, "\n")
}

func guidanceLines(g StyleGuidance) []string {
	lines := []string{"Quality and style guidance:"}
	if pos := strings.TrimSpace(g.Positive); pos != "" {
		lines = append(lines, "- Positive guide (follow these tips): "+pos)
	}
	if custom := strings.TrimSpace(g.CustomStyle); custom != "" {
		lines = append(lines, "- Custom style (incorporate these details): "+custom)
	}
	lines = append(lines, "- Negative guide (AVOID at all costs): "+strings.TrimSpace(g.Negative))
	return lines
}

// BuildSingleStepInstruction renders the one-call prompt refinement variant:
// the garment from the reference replaces the current clothing and the
// positive and negative prompts steer the result.
func BuildSingleStepInstruction(g StyleGuidance) string {
	parts := []string{
		"Replace the clothing of the person in the first image with the garment shown in the second image.",
		"Consider the fit and style of the garment to realistically dress the person.",
		identityRule,
	}
	if pos := strings.TrimSpace(g.Positive); pos != "" {
		parts = append(parts, "Apply the following positive prompts to enhance the image: "+pos+".")
	}
	if custom := strings.TrimSpace(g.CustomStyle); custom != "" {
		parts = append(parts, "Custom style: "+custom+".")
	}
	parts = append(parts, "Avoid these characteristics: "+strings.TrimSpace(g.Negative)+".")
	return strings.Join(parts, "\n")
}
