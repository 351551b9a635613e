package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	tikOnce sync.Once
	tikEnc  *tiktoken.Tiktoken
	tikErr  error
)

// tiktokenEncoding lazily loads the cl100k_base BPE ranks shared by the
// GPT-3.5/4 model family — the closest real encoding to the chat-completion
// wire format every provider here speaks, none of which tiktoken-go has a
// dedicated encoding for. The result (success or failure) is memoized: if
// rank loading fails once (e.g. no network egress to fetch it), every later
// call falls back to EstimateTokens instead of retrying the load.
func tiktokenEncoding() (*tiktoken.Tiktoken, error) {
	tikOnce.Do(func() {
		tikEnc, tikErr = tiktoken.GetEncoding("cl100k_base")
	})
	return tikEnc, tikErr
}

// CountTokens returns a real BPE token count for text. ok is false when no
// tiktoken encoding could be loaded, in which case the caller should fall
// back to EstimateTokens.
func CountTokens(text string) (n int, ok bool) {
	enc, err := tiktokenEncoding()
	if err != nil || enc == nil {
		return 0, false
	}
	return len(enc.Encode(text, nil, nil)), true
}

// IsEnglishish reports whether text reads as English (or another
// Latin-script language with similar token density), versus a wide script
// like CJK or Hangul where tiktoken's English-tuned BPE — and the whitespace
// heuristic it backstops — both undercount. Cyrillic and Greek count as
// Latin-like here. Endpoint summaries and
// descriptions pulled from a non-English OpenAPI document are exactly the
// case this distinguishes.
func IsEnglishish(text string) bool {
	total, wide := 0, 0
	for _, r := range text {
		switch r {
		case ' ', '\t', '\n', '\r':
			continue
		}
		total++
		if r >= 0x2E80 {
			// CJK, Hangul, and other wide scripts live well above the
			// Latin/Cyrillic/Greek blocks.
			wide++
		}
	}
	if total == 0 {
		return true
	}
	return wide*2 < total
}
