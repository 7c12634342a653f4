package gemini

import "strings"

const solvePrompt = `You are an expert tutor. Analyze the following question paper and provide detailed, step-by-step solutions for each question. Format your response in markdown with clear headings and explanations.

Question Paper:
{{QUESTIONS}}

Please provide:
1. Clear identification of each question
2. Step-by-step solution methodology
3. Final answers where applicable
4. Explanations of key concepts used

Format the response professionally with proper markdown formatting.`

// BuildPrompt embeds the question text into the fixed tutoring template.
func BuildPrompt(questionText string) string {
	return strings.Replace(solvePrompt, "{{QUESTIONS}}", questionText, 1)
}
