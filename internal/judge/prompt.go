package judge

import (
	"fmt"
	"regexp"
	"strings"

	"dialogeval/internal/models"
)

// Stored prompt templates use {placeholder} tokens, not Go templates.
var placeholderPattern = regexp.MustCompile(`\{([a-z_]+)\}`)

var supportedPlaceholders = map[string]bool{
	"question":              true,
	"expected_answer":       true,
	"actual_answer":         true,
	"parameter_name":        true,
	"parameter_description": true,
}

const responseFormatBlock = `

**Response Format:**
SCORE: [0-100]
REASONING: [Your detailed explanation of the evaluation]

**Important Instructions:**
- Provide exactly one integer score between 0 and 100
- Include detailed reasoning that explains your scoring decision
- Be objective and consistent in your evaluation`

// Input is the (question, expected, actual) triple under evaluation.
type Input struct {
	Question       string
	ExpectedAnswer string
	ActualAnswer   string
}

// RenderPrompt builds the judge prompt for one parameter. Custom templates
// with unsupported placeholders fall back to the generic prompt, and any
// template missing the SCORE/REASONING contract gets the standard format
// block appended.
func RenderPrompt(in Input, param models.ParameterConfig) string {
	template := param.PromptTemplate
	if strings.TrimSpace(template) == "" || hasUnsupportedPlaceholders(template) {
		return genericPrompt(in, param.Name)
	}

	prompt := strings.NewReplacer(
		"{question}", in.Question,
		"{expected_answer}", in.ExpectedAnswer,
		"{actual_answer}", in.ActualAnswer,
		"{parameter_name}", param.Name,
		"{parameter_description}", param.Description,
	).Replace(template)

	if !strings.Contains(prompt, "SCORE:") || !strings.Contains(prompt, "REASONING:") {
		prompt += responseFormatBlock
	}

	return prompt
}

func hasUnsupportedPlaceholders(template string) bool {
	for _, match := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		if !supportedPlaceholders[match[1]] {
			return true
		}
	}
	return false
}

func genericPrompt(in Input, parameterName string) string {
	return fmt.Sprintf(`You are an expert AI judge evaluating conversational AI responses for a customer service system.

**Context:**
Question: "%s"
Expected Answer: "%s"
Actual Answer: "%s"

**Evaluation Task: %s Assessment**
Evaluate the actual response for the "%s" parameter.

**Scoring Guidelines:**
- 90-100: Excellent
- 70-89: Good
- 50-69: Average
- 30-49: Poor
- 0-29: Very Poor

**Response Format:**
SCORE: [0-100]
REASONING: [Your detailed explanation of the assessment]

**Important Instructions:**
- Score must be between 0-100
- Provide clear reasoning for your score
- Consider the context and user's needs
- Be consistent and objective in your evaluation`,
		in.Question, in.ExpectedAnswer, in.ActualAnswer, parameterName, parameterName)
}
