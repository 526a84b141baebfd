package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/maykecorrea/dressup/internal/catalog"
	"github.com/maykecorrea/dressup/internal/imagegen"
)

type composeFlags struct {
	base     string
	slots    []string
	positive string
	negative string
	style    string
	size     string
	aspect   string
	policy   string
	out      string
	single   bool
	looks    bool
	save     bool
}

func composeCmd() *cobra.Command {
	var f composeFlags
	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Dress a person photo in one or more garments",
		Example: `  dressup compose --base me.jpg --slot top=@shirt.png --slot pants="black jeans" --out look.png
  dressup compose --base me.jpg --slot coat=catalog:denim-jacket-blue --looks --out looks.png`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runCompose(ctx, f)
		},
	}
	cmd.Flags().StringVar(&f.base, "base", "", "person photo")
	cmd.Flags().StringArrayVar(&f.slots, "slot", nil, "garment as slot=@image, slot=description or slot=catalog:id (repeatable, in order)")
	cmd.Flags().StringVar(&f.positive, "positive", "", "positive guidance")
	cmd.Flags().StringVar(&f.negative, "negative", "", "negative guidance")
	cmd.Flags().StringVar(&f.style, "style", "", "custom style")
	cmd.Flags().StringVar(&f.size, "size", "", "output size, for example 1024x1536")
	cmd.Flags().StringVar(&f.aspect, "aspect-ratio", "", "output aspect ratio, for example 3:4")
	cmd.Flags().StringVar(&f.policy, "refusal-policy", string(imagegen.RefusalAbort), "abort or partial")
	cmd.Flags().StringVarP(&f.out, "out", "o", "result.png", "output file; looks are written as <name>-<slot><ext>")
	cmd.Flags().BoolVar(&f.single, "single", false, "single call prompt variant")
	cmd.Flags().BoolVar(&f.looks, "looks", false, "one independent look per slot")
	cmd.Flags().BoolVar(&f.save, "save", false, "also store results in the gallery")
	_ = cmd.MarkFlagRequired("base")
	cmd.MarkFlagsMutuallyExclusive("single", "looks")
	return cmd
}

func runCompose(ctx context.Context, f composeFlags) error {
	logger := newLogger()
	base, err := readImage(f.base)
	if err != nil {
		return fmt.Errorf("base image: %w", err)
	}
	cat, err := catalog.Default()
	if err != nil {
		return err
	}
	req := imagegen.CompositionRequest{
		RequestID: uuid.NewString(),
		Base:      &base,
		Guidance:  imagegen.StyleGuidance{Positive: f.positive, Negative: f.negative, CustomStyle: f.style},
		Options:   imagegen.EditOptions{Size: f.size, AspectRatio: f.aspect},
	}
	for _, raw := range f.slots {
		slot, err := parseSlot(raw, cat, readImage)
		if err != nil {
			return err
		}
		req.Slots = append(req.Slots, slot)
	}

	policy, err := imagegen.ParseRefusalPolicy(f.policy)
	if err != nil {
		return err
	}
	set, err := buildModels(ctx, &logger)
	if err != nil {
		return err
	}
	composer, err := imagegen.NewComposer(imagegen.ComposerOptions{
		Editor:      set.Editor,
		Policy:      policy,
		StepTimeout: viper.GetDuration("timeout"),
		Logger:      &logger,
	})
	if err != nil {
		return err
	}

	var outputs []output
	switch {
	case f.looks:
		looks, err := composer.ComposeLooks(ctx, req)
		if err != nil {
			return err
		}
		for _, look := range looks {
			if look.Err != nil {
				logger.Error().Err(look.Err).Str("slot", string(look.Slot)).Msg("look failed")
				continue
			}
			outputs = append(outputs, output{slot: string(look.Slot), result: look.Result})
		}
		if len(outputs) == 0 {
			return fmt.Errorf("every look failed")
		}
	case f.single:
		res, err := composer.ComposeSingle(ctx, req)
		if err != nil {
			return err
		}
		outputs = append(outputs, output{result: res})
	default:
		res, err := composer.Compose(ctx, req)
		if err != nil {
			return err
		}
		outputs = append(outputs, output{result: res})
	}
	return writeOutputs(ctx, f, outputs)
}

type output struct {
	slot   string
	result imagegen.CompositionResult
}

type composeReport struct {
	File           string `json:"file"`
	Slot           string `json:"slot,omitempty"`
	Partial        bool   `json:"partial"`
	StepsCompleted int    `json:"steps_completed"`
	StepsPlanned   int    `json:"steps_planned"`
	StopReason     string `json:"stop_reason,omitempty"`
	GalleryKey     string `json:"gallery_key,omitempty"`
}

func writeOutputs(ctx context.Context, f composeFlags, outputs []output) error {
	reports := make([]composeReport, 0, len(outputs))
	for _, o := range outputs {
		path := f.out
		if o.slot != "" {
			path = suffixPath(f.out, o.slot)
		}
		if err := os.WriteFile(path, o.result.Image.Data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		rep := composeReport{
			File:           path,
			Slot:           o.slot,
			Partial:        o.result.Partial,
			StepsCompleted: o.result.StepsCompleted,
			StepsPlanned:   o.result.StepsPlanned,
		}
		if o.result.StopReason != nil {
			rep.StopReason = o.result.StopReason.Error()
		}
		if f.save {
			store, err := openGallery()
			if err != nil {
				return err
			}
			item, err := store.Save(ctx, viper.GetString("owner"), o.result.Image)
			if err != nil {
				return err
			}
			rep.GalleryKey = item.Key
		}
		reports = append(reports, rep)
	}
	if viper.GetBool("json") {
		return printJSON(reports)
	}
	for _, rep := range reports {
		status := "complete"
		if rep.Partial {
			status = "partial: " + rep.StopReason
		}
		fmt.Printf("%s (%d/%d steps, %s)\n", rep.File, rep.StepsCompleted, rep.StepsPlanned, status)
	}
	return nil
}
