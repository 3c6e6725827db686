package rse

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidConfig is returned when a Config holds out-of-range options.
var ErrInvalidConfig = errors.New("invalid rse config")

var validate = validator.New()

// Config holds the tunable thresholds of the extraction.
type Config struct {
	// TopKForDocumentSelection is how many distinct source documents, ordered by their best
	// ranked chunk, make up the meta-document.
	TopKForDocumentSelection int `json:"top_k_for_document_selection" koanf:"top_k_for_document_selection" env:"TOP_K_FOR_DOCUMENT_SELECTION" envDefault:"7" validate:"gt=0"`

	// MaxLength caps a single segment, in chunks. It also bounds the filler run kept between
	// two retrieved chunks of a document.
	MaxLength int `json:"max_length" koanf:"max_length" env:"MAX_LENGTH" envDefault:"10" validate:"gt=0,lte=1000"`

	// OverallMaxLength caps the summed length of all segments selected for one query.
	OverallMaxLength int `json:"overall_max_length" koanf:"overall_max_length" env:"OVERALL_MAX_LENGTH" envDefault:"50" validate:"gt=0"`

	// MinimumValue is the acceptance floor for a segment's summed relevance.
	MinimumValue float64 `json:"minimum_value" koanf:"minimum_value" env:"MINIMUM_VALUE" envDefault:"0.2" validate:"gte=0"`

	// IrrelevantChunkPenalty is charged for every filler chunk a segment spans.
	IrrelevantChunkPenalty float64 `json:"irrelevant_chunk_penalty" koanf:"irrelevant_chunk_penalty" env:"IRRELEVANT_CHUNK_PENALTY" envDefault:"0.2" validate:"gte=0"`

	// DecayRate controls how fast relevance falls off with rank. Larger is slower.
	DecayRate float64 `json:"decay_rate" koanf:"decay_rate" env:"DECAY_RATE" envDefault:"20" validate:"gt=0"`
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		TopKForDocumentSelection: 7,
		MaxLength:                10,
		OverallMaxLength:         50,
		MinimumValue:             0.2,
		IrrelevantChunkPenalty:   0.2,
		DecayRate:                20,
	}
}

// Validate reports options outside their valid ranges.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return fmt.Errorf("%w: %s must satisfy %s=%s (got %v)", ErrInvalidConfig, e.Field(), e.Tag(), e.Param(), e.Value())
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// segmentCap is the effective per-segment limit. A segment longer than the overall budget
// could never be accepted, so it is never proposed.
func (c Config) segmentCap() int {
	if c.OverallMaxLength < c.MaxLength {
		return c.OverallMaxLength
	}
	return c.MaxLength
}

// Overrides carries optional per-call replacements for Config fields.
type Overrides struct {
	TopKForDocumentSelection *int     `json:"top_k_for_document_selection,omitempty"`
	MaxLength                *int     `json:"max_length,omitempty"`
	OverallMaxLength         *int     `json:"overall_max_length,omitempty"`
	MinimumValue             *float64 `json:"minimum_value,omitempty"`
	IrrelevantChunkPenalty   *float64 `json:"irrelevant_chunk_penalty,omitempty"`
	DecayRate                *float64 `json:"decay_rate,omitempty"`
}

// Apply returns c with every set field of o replaced.
func (c Config) Apply(o *Overrides) Config {
	if o == nil {
		return c
	}
	if o.TopKForDocumentSelection != nil {
		c.TopKForDocumentSelection = *o.TopKForDocumentSelection
	}
	if o.MaxLength != nil {
		c.MaxLength = *o.MaxLength
	}
	if o.OverallMaxLength != nil {
		c.OverallMaxLength = *o.OverallMaxLength
	}
	if o.MinimumValue != nil {
		c.MinimumValue = *o.MinimumValue
	}
	if o.IrrelevantChunkPenalty != nil {
		c.IrrelevantChunkPenalty = *o.IrrelevantChunkPenalty
	}
	if o.DecayRate != nil {
		c.DecayRate = *o.DecayRate
	}
	return c
}
