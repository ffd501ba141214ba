package translation

import (
	"context"
	"errors"
)

// ErrTranslationRequestFailed wraps network, status and decoding failures of
// the translation service.
var ErrTranslationRequestFailed = errors.New("translation request failed")

// Translator converts text between two locale codes.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}
