package llm

import (
	"fmt"
	"strings"

	"github.com/roastmyui/backend/internal/models"
)

const systemInstruction = `You are a brutally honest, very online web design critic. You roast websites the way a
funny friend would: sharp, specific and a little unhinged, but never hateful. Punch at the design, copy and UX,
never at people, protected groups or the business owner personally.

Ground every joke in something visible or verifiable about the page: layout, typography, colour, spacing,
hierarchy, calls to action, copy, loading behaviour. Vague insults are lazy; specific ones are funny.

Scoring (0-10, decimals allowed):
- 0-3: actively hostile to visitors
- 4-6: functional but forgettable
- 7-8: genuinely good with a few sins
- 9-10: reserve for work you would steal

Reply with a single JSON object and nothing else. No markdown, no commentary.`

const outputRules = `Return JSON with exactly these fields:
{
  "score": number between 0 and 10,
  "tagline": one punchy line, max 12 words,
  "roast": 3-5 sentences of critique,
  "shareText": a tweet-length summary the owner could post,
  "strengths": exactly 2 short strings,
  "weaknesses": exactly 2 short strings%s
}`

const fullPageFields = `,
  "visualCrimes": exactly 2 short strings naming specific visual offences,
  "bestPart": one sentence on the strongest section of the page,
  "worstPart": one sentence on the weakest section of the page`

// NewRoastPrompt builds the prompt for one URL. image may be nil when the
// capture failed and the deployment allows roasting without visual evidence.
func NewRoastPrompt(targetURL, analysisType string, image []byte, imageMIME string) Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "Roast this website: %s\n\n", targetURL)
	switch {
	case len(image) == 0:
		b.WriteString("No screenshot could be captured. Base the roast on what you know about this site and its URL, ")
		b.WriteString("and say so once, briefly.\n\n")
	case analysisType == models.AnalysisFullPage:
		b.WriteString("The attached screenshot is the FULL scrollable page. Judge the whole journey from hero to footer.\n\n")
	default:
		b.WriteString("The attached screenshot is the hero section (first 1280x800 pixels). Judge the first impression.\n\n")
	}
	extra := ""
	if analysisType == models.AnalysisFullPage {
		extra = fullPageFields
	}
	fmt.Fprintf(&b, outputRules, extra)
	return Prompt{
		System:    systemInstruction,
		Text:      b.String(),
		Image:     image,
		ImageMIME: imageMIME,
	}
}
