package classifier

import "github.com/stewardhq/steward/pkg/schema"

// Resolution is the thresholded routing decision derived from a raw
// classification.
type Resolution struct {
	// FinalIntent is what the graph routes on. Forced to ambiguous when the
	// classification falls below the ambiguity boundary or was self-flagged.
	FinalIntent schema.Intent
	// Uncertain marks the mid-band (informational only; routing proceeds).
	Uncertain bool
	// Details preserves the original classification for clarification
	// prompts and trace records.
	Details map[string]any
}

// Resolve applies confidence thresholding to a classification. Confidence
// under the ambiguity boundary or a self-flagged ambiguous result forces the
// final intent to ambiguous; the mid-band keeps the intent but marks it
// uncertain; at or above the confident boundary the intent passes through.
func Resolve(c schema.Classification, t schema.Thresholds) Resolution {
	details := map[string]any{
		"original_intent": string(c.Intent),
		"confidence":      c.Confidence,
	}
	if c.Reasoning != "" {
		details["reasoning"] = c.Reasoning
	}
	if len(c.AlternativeIntents) > 0 {
		details["alternative_intents"] = c.AlternativeIntents
	}

	if c.Confidence < t.AmbiguousBelow || c.Ambiguous {
		return Resolution{
			FinalIntent: schema.IntentAmbiguous,
			Details:     details,
		}
	}

	return Resolution{
		FinalIntent: c.Intent,
		Uncertain:   c.Confidence < t.ConfidentAt,
		Details:     details,
	}
}
