package classify

import "context"

// Verdict is a classifier's opinion on whether a capture shows an identity document
type Verdict struct {
	IsDocument   bool    `json:"is_document"`
	DocumentType string  `json:"document_type,omitempty"`
	Confidence   float64 `json:"confidence"`
}

// Classifier suggests whether a photo is an identity document. The
// suggestion is advisory; the operator's flag is never set from it.
type Classifier interface {
	// Classify analyzes an encoded image
	Classify(ctx context.Context, imageData []byte, contentType string) (*Verdict, error)
	// Close closes the classifier and releases resources
	Close() error
}

// documentPrompt is the shared prompt used by all LLM providers
const documentPrompt = `You are looking at a photo taken at a customer service desk. Decide whether the photo shows an identity document (passport, national ID card, driver's license, residence permit) as opposed to any other paper, object or person.

Return ONLY valid JSON in this exact format:
{
  "is_document": true,
  "document_type": "passport",
  "confidence": 0.0
}

Important:
- "is_document" must be a boolean
- "document_type" is one of "passport", "id_card", "drivers_license", "residence_permit", "other" or null when is_document is false
- "confidence" is a number between 0 and 1
- Do not include any text before or after the JSON
- Do not use markdown code blocks`
