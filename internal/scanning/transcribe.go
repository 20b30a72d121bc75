package scanning

import "strings"

// transcribePrompt is the shared prompt used by all LLM backends. The models only
// transcribe, items come from ParseReceiptText.
const transcribePrompt = `You are reading a photo of a clothing store receipt. Transcribe every line of text exactly as printed, top to bottom.

Rules:
- Output one receipt line per line of text
- Keep prices, sizes, quantities ("1x") and store names exactly as printed, including the "$" sign
- Do not summarize, translate, reorder or correct anything
- Do not add any commentary before or after the text
- Do not use markdown code blocks`

// cleanTranscript strips markdown fences and surrounding whitespace from model output
func cleanTranscript(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```text")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
