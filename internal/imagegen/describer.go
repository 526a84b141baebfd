package imagegen

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// DefaultDescriptionLanguage is used when no language is configured.
const DefaultDescriptionLanguage = "pt-BR"

var describeLanguages = []language.Tag{
	language.BrazilianPortuguese,
	language.English,
	language.Spanish,
	language.Indonesian,
}

var describeMatcher = language.NewMatcher(describeLanguages)

// MatchDescriptionLanguage picks the closest supported description
// language for the given BCP 47 preferences. fallback wins when nothing
// matches with reasonable confidence.
func MatchDescriptionLanguage(fallback string, prefs ...string) string {
	tags := parseTags(prefs)
	for _, t := range tags {
		base, _ := t.Base()
		for _, supported := range describeLanguages {
			if b, _ := supported.Base(); b == base {
				return supported.String()
			}
		}
	}
	if len(tags) > 0 {
		if tag, _, confidence := describeMatcher.Match(tags...); confidence >= language.High {
			return tag.String()
		}
	}
	if fallback != "" {
		return fallback
	}
	return DefaultDescriptionLanguage
}

func parseTags(prefs []string) []language.Tag {
	tags := make([]language.Tag, 0, len(prefs))
	for _, p := range prefs {
		if t, err := language.Parse(strings.TrimSpace(p)); err == nil {
			tags = append(tags, t)
		}
	}
	return tags
}

func describePrompt(lang string) string {
	name := "Brazilian Portuguese"
	if tag, err := language.Parse(lang); err == nil {
		if n := display.Tags(language.English).Name(tag); n != "" {
			name = n
		}
	}
	return fmt.Sprintf("You are a fashion expert and personal stylist. Analyze the garment in the image and describe it in detail, in %s. "+
		"Be specific about the type of piece (for example: short sleeve t-shirt, skinny jeans, summer dress), color, pattern, fabric, cut and any other relevant details. "+
		"Answer with the description only.", name)
}

// DescriberOptions configures a Describer.
type DescriberOptions struct {
	Model    VisionModel
	Language string
	CacheTTL time.Duration
	Logger   *zerolog.Logger
}

// Describer asks a vision model for a textual garment description.
type Describer struct {
	model    VisionModel
	language string
	cache    *gocache.Cache
	logger   zerolog.Logger
}

// NewDescriber builds a Describer. A zero CacheTTL disables caching.
func NewDescriber(opts DescriberOptions) (*Describer, error) {
	if opts.Model == nil {
		return nil, errors.New("imagegen: vision model is required")
	}
	lang := strings.TrimSpace(opts.Language)
	if lang == "" {
		lang = DefaultDescriptionLanguage
	}
	logger := zerolog.New(io.Discard)
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	d := &Describer{model: opts.Model, language: lang, logger: logger}
	if opts.CacheTTL > 0 {
		d.cache = gocache.New(opts.CacheTTL, 2*opts.CacheTTL)
	}
	return d, nil
}

// Language returns the default description language.
func (d *Describer) Language() string {
	return d.language
}

// Describe describes img in the default language.
func (d *Describer) Describe(ctx context.Context, img ImageRef) (DescriptionResult, error) {
	return d.DescribeIn(ctx, img, d.language)
}

// DescribeIn describes img in lang. A blank model answer is a refusal.
func (d *Describer) DescribeIn(ctx context.Context, img ImageRef, lang string) (DescriptionResult, error) {
	if img.Empty() || strings.TrimSpace(img.ContentType) == "" {
		return DescriptionResult{}, invalidf("garment image is required")
	}
	if lang = strings.TrimSpace(lang); lang == "" {
		lang = d.language
	}
	key := cacheKey(img, lang)
	if d.cache != nil {
		if v, ok := d.cache.Get(key); ok {
			return DescriptionResult{Description: v.(string), Language: lang, Image: img}, nil
		}
	}
	text, err := d.model.DescribeImage(ctx, img, describePrompt(lang))
	if err != nil {
		if !errors.Is(err, ErrProviderRefused) && !errors.Is(err, ErrProviderTransport) {
			err = Transport("vision", 0, err)
		}
		return DescriptionResult{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return DescriptionResult{}, Refused("vision", "no description returned")
	}
	if d.cache != nil {
		d.cache.SetDefault(key, text)
	}
	d.logger.Debug().Str("language", lang).Int("chars", len(text)).Msg("describe: garment described")
	return DescriptionResult{Description: text, Language: lang, Image: img}, nil
}

func cacheKey(img ImageRef, lang string) string {
	sum := sha256.Sum256(img.Data)
	return lang + ":" + hex.EncodeToString(sum[:])
}
