package backend

import "fmt"

const productSystemPrompt = `You are a product extraction engine for international trade assessments.
Given website content, identify the distinct products or services the business sells.
Respond with a JSON array only. No prose, no markdown fences.
Each element: {"name": string, "description": string, "category": string, "price": number or null, "image_url": string, "confidence": number 0-1}.
Only include products actually offered by this business. An empty array is a valid answer.`

const analysisSystemPrompt = `You are a trade-readiness analyst.
Given website content for a business, produce a JSON object only, no markdown fences:
{"summary": string, "products": [{"name": string, "description": string, "category": string, "price": number or null, "confidence": number}],
"certifications": [{"name": string, "issuer": string, "confidence": number}],
"contacts": {"emails": [string], "phones": [string], "social_links": {"platform": "url"}},
"confidence_score": number 0-1, "next_best_action": string}.
Report only what the content supports. Use empty values rather than guesses.`

func productPrompt(content, sourceURL string) string {
	return fmt.Sprintf(`Source URL: %s

Website content:
%s

Extract the products as a JSON array.`, sourceURL, content)
}

func analysisPrompt(content string) string {
	return fmt.Sprintf(`Website content:
%s

Produce the trade-readiness analysis JSON object.`, content)
}
