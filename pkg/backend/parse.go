package backend

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/precon-cli/internal/model"
)

// cleanJSON attempts to extract a JSON object from text that may contain
// markdown code fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	// Strip markdown code fences.
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	// Find first { and last }.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

// decodeResponse parses raw model text into the typed payload for the given
// purpose. A parse failure is a MalformedResponseError.
func decodeResponse(backendID string, purpose model.PassPurpose, raw string, usage model.TokenUsage) (*Response, error) {
	text := cleanJSON(raw)

	resp := &Response{
		Purpose: purpose,
		Usage:   usage,
	}

	var err error
	switch purpose {
	case model.PurposeInitialExtraction:
		var p ExtractionPayload
		if err = json.Unmarshal([]byte(text), &p); err == nil {
			resp.Extraction = &p
		}
	case model.PurposeSelfReview, model.PurposeTradeDeepDive, model.PurposeCrossValidation:
		var p ReviewPayload
		if err = json.Unmarshal([]byte(text), &p); err == nil {
			resp.Review = &p
		}
	case model.PurposeFinalValidation:
		var p ValidationPayload
		if err = json.Unmarshal([]byte(text), &p); err == nil {
			resp.Validation = &p
		}
	default:
		return nil, NewMalformedResponseError(backendID, purpose, raw,
			eris.Errorf("no response shape defined for purpose %q", purpose))
	}

	if err != nil {
		return nil, NewMalformedResponseError(backendID, purpose, raw, err)
	}
	return resp, nil
}
