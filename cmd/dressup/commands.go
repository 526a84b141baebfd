package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/maykecorrea/dressup/internal/catalog"
	"github.com/maykecorrea/dressup/internal/gallery"
	"github.com/maykecorrea/dressup/internal/imagegen"
)

func describeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <image>",
		Short: "Describe a garment image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			img, err := readImage(args[0])
			if err != nil {
				return err
			}
			set, err := buildModels(cmd.Context(), &logger)
			if err != nil {
				return err
			}
			if set.Vision == nil {
				return fmt.Errorf("no vision model configured")
			}
			lang := imagegen.MatchDescriptionLanguage(imagegen.DefaultDescriptionLanguage, viper.GetString("language"))
			describer, err := imagegen.NewDescriber(imagegen.DescriberOptions{Model: set.Vision, Language: lang, Logger: &logger})
			if err != nil {
				return err
			}
			res, err := describer.Describe(cmd.Context(), img)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]string{"description": res.Description, "language": res.Language})
			}
			fmt.Println(res.Description)
			return nil
		},
	}
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog [id]",
		Short: "List stock garments or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Default()
			if err != nil {
				return err
			}
			items := cat.List()
			if len(args) == 1 {
				g, err := cat.Get(args[0])
				if err != nil {
					return err
				}
				items = []catalog.Garment{g}
			}
			if viper.GetBool("json") {
				return printJSON(items)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Name", "Slot", "Hint", "Link"})
			for _, g := range items {
				tw.AppendRow(table.Row{g.ID, g.Name, g.Slot, g.AIHint, g.PurchaseLink})
			}
			tw.Render()
			return nil
		},
	}
	return cmd
}

func galleryCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "gallery", Short: "Manage saved results"}
	cmd.AddCommand(galleryListCmd())
	cmd.AddCommand(galleryDeleteCmd())
	cmd.AddCommand(galleryExportCmd())
	return cmd
}

func withGallery(ctx context.Context, fn func(ctx context.Context, store gallery.Store, owner string) error) error {
	store, err := openGallery()
	if err != nil {
		return err
	}
	return fn(ctx, store, viper.GetString("owner"))
}

func galleryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved images",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGallery(cmd.Context(), func(ctx context.Context, store gallery.Store, owner string) error {
				items, err := store.List(ctx, owner)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Key", "Type", "Size", "Bytes", "Created"})
				for _, it := range items {
					dims := "-"
					if it.Width > 0 {
						dims = fmt.Sprintf("%dx%d", it.Width, it.Height)
					}
					tw.AppendRow(table.Row{it.Key, it.ContentType, dims, it.Size, it.CreatedAt.Local().Format("2006-01-02 15:04")})
				}
				tw.AppendFooter(table.Row{"", "", "", "Total", len(items)})
				tw.Render()
				return nil
			})
		},
	}
}

func galleryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>...",
		Short: "Delete saved images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGallery(cmd.Context(), func(ctx context.Context, store gallery.Store, owner string) error {
				for _, key := range args {
					if err := store.Delete(ctx, owner, key); err != nil {
						return fmt.Errorf("delete %s: %w", key, err)
					}
					fmt.Println("deleted", key)
				}
				return nil
			})
		},
	}
}

func galleryExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every saved image into a zip archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGallery(cmd.Context(), func(ctx context.Context, store gallery.Store, owner string) error {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				n, err := gallery.Export(ctx, store, owner, f)
				if cerr := f.Close(); err == nil {
					err = cerr
				}
				if err != nil {
					return err
				}
				fmt.Printf("%d images written to %s\n", n, out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "gallery.zip", "archive path")
	return cmd
}

// suffixPath turns look.png into look-top.png.
func suffixPath(path, suffix string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "-" + suffix + ext
}
