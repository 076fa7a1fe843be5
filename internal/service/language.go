package service

import "github.com/StantonManagement/sms-foundation-agent/internal/store"

type languageEvidence struct {
	Lang       string
	Confidence float64
}

func (e languageEvidence) known() bool {
	return e.Lang != "" && e.Lang != store.LanguageUnknown
}

// mergeLanguage arbitrates between the freshly detected language, the
// conversation's stored evidence, and the tenant's last known language.
// Detection wins only when it is at least as confident as everything already
// known; otherwise the stored value stays. A conversation still unknown
// after that inherits the tenant-level language, so fresh conversations for
// a known tenant start out right. The result is deterministic for any input.
func mergeLanguage(detected, prev languageEvidence, lastKnown *languageEvidence) languageEvidence {
	threshold := prev.Confidence
	if lastKnown != nil && lastKnown.Confidence > threshold {
		threshold = lastKnown.Confidence
	}

	result := prev
	if detected.known() && detected.Confidence >= threshold {
		result = detected
	}

	if !result.known() && lastKnown != nil && lastKnown.known() {
		result = *lastKnown
	}

	if result.Lang == "" {
		result.Lang = store.LanguageUnknown
	}
	return result
}
