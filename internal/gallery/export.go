package gallery

import (
	"context"
	"io"

	"github.com/maykecorrea/dressup/pkg/zip"
)

// Export writes every image of owner into a zip archive on w.
func Export(ctx context.Context, store Store, owner string, w io.Writer) (int, error) {
	items, err := store.List(ctx, owner)
	if err != nil {
		return 0, err
	}
	assets := make([]zip.Asset, 0, len(items))
	for _, item := range items {
		img, err := store.Open(ctx, owner, item.Key)
		if err != nil {
			return 0, err
		}
		assets = append(assets, zip.Asset{
			Filename: item.Key,
			MIME:     img.ContentType,
			Modified: item.CreatedAt,
			Data:     img.Data,
		})
	}
	if err := zip.WriteAssets(w, assets); err != nil {
		return 0, err
	}
	return len(assets), nil
}
