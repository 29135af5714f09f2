package main

import "fmt"

const agentInstruction = `You are an expert Career Consultant.
Answer with the analysis only, formatted in Markdown.`

const promptTemplate = `
You are an expert Career Consultant.

TASK:
Analyze the following Resume against the Job Description (JD).

OUTPUT FORMAT:
Return a clean, structured response using Markdown headers (#, ##) and bullet points.
Include these 4 sections:
1. **Missing Critical Skills** (What is in JD but not in Resume?)
2. **Strong Matches** (What matches well?)
3. **Resume Suggestions** (Specific actionable tips)
4. **Interview Prep** (3 technical questions based on the gaps)

RESUME:
%s

JOB DESCRIPTION:
%s
`

// BuildPrompt embeds both inputs verbatim; nothing is escaped.
func BuildPrompt(resume, jobDescription string) string {
	return fmt.Sprintf(promptTemplate, resume, jobDescription)
}
