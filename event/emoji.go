package event

import (
	"regexp"

	"github.com/matrixgo/sdk/internal/jsonutil"
)

// replyFallbackRe strips the leading quoted-reply block a rich client
// prepends to a reply body (§6 "Reply-fallback strip regex").
var replyFallbackRe = regexp.MustCompile(`^>( \*)? <[^>]+>[^\n\r]+\r?\n(?:> [^\n]*\r?\n)*\r?\n`)

// StripReplyFallback removes the leading quoted-reply block from body,
// once, if present.
func StripReplyFallback(body string) string {
	return replyFallbackRe.ReplaceAllString(body, "")
}

// emoteCharClass is the unicode character class §6 defines for "only
// emotes" / emote-counting: copyright/registered marks, the general emoji
// blocks U+2000-U+3300, supplementary-plane emoji via surrogate pairs, and
// optional variation selectors.
const emoteCharClass = `[\x{00A9}\x{00AE}\x{2000}-\x{3300}\x{1F000}-\x{1FFFF}\x{FE00}-\x{FE0F}]`

var (
	emoteTokenRe   = regexp.MustCompile(emoteCharClass)
	customEmoteRe  = regexp.MustCompile(`(?i)<img[^>]*(?:data-mx-emote|data-mx-emoticon)[^>]*>`)
	onlyEmotesPlainRe = regexp.MustCompile(`^(?:` + emoteCharClass + `|\s)+$`)
)

// IsOnlyEmotes reports whether the event's text (or, for rich messages,
// formatted HTML) consists solely of emoji / whitespace / custom-emote
// tags (§6 Emoji detection regexes).
func (e *Event) IsOnlyEmotes(richText bool) bool {
	text := e.emoteSourceText(richText)
	if text == "" {
		return false
	}
	if !richText {
		return onlyEmotesPlainRe.MatchString(text)
	}
	stripped := customEmoteRe.ReplaceAllString(text, "")
	return onlyEmotesPlainRe.MatchString(stripped) || stripped == ""
}

// NumberEmotes counts emoji-class matches in the event's text (plain body)
// or formatted HTML (rich), per §6.
func (e *Event) NumberEmotes(richText bool) int {
	text := e.emoteSourceText(richText)
	if text == "" {
		return 0
	}
	count := len(emoteTokenRe.FindAllString(text, -1))
	if richText {
		count += len(customEmoteRe.FindAllString(text, -1))
	}
	return count
}

func (e *Event) emoteSourceText(richText bool) string {
	if richText {
		if fb, ok := jsonutil.NonEmptyString(e.Content, "formatted_body"); ok {
			return fb
		}
	}
	return e.Body()
}
