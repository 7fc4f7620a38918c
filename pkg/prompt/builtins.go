package prompt

// builtinTemplates are seeded into every registry at construction. They are
// protected from removal. Every placeholder is required; there are no
// optional slots with fallback values.
var builtinTemplates = []Template{
	{
		Name:        "company_analysis",
		Description: "Analyze a company's market position, strengths, and opportunities",
		Body: `Analyze the following company and provide insights:

Company: {company_name}
Industry: {industry}
Additional Context: {additional_context}

Please provide:
1. Market position analysis
2. Key strengths and weaknesses
3. Competitive landscape overview
4. Growth opportunities
5. Risk factors
`,
	},
	{
		Name:        "text_summary",
		Description: "Provide comprehensive summaries of text content",
		Body: `Please provide a comprehensive summary of the following text:

Text: {text}

Requirements:
- Maintain key information and context
- Highlight main points and conclusions
- Keep the summary concise but informative
- Preserve the original tone and style where appropriate
`,
	},
	{
		Name:        "code_review",
		Description: "Review code for quality, security, and best practices",
		Body: `Please review the following code and provide feedback:

Code:
{code}

Language: {language}

Please provide:
1. Code quality assessment
2. Potential bugs or issues
3. Security concerns
4. Performance improvements
5. Best practices recommendations
6. Overall rating (1-10)
`,
	},
	{
		Name:        "general_question",
		Description: "Answer general questions with comprehensive responses",
		Body: `Please answer the following question:

Question: {question}

Additional Context: {context}

Please provide a comprehensive and accurate answer based on the information provided.
`,
	},
}
