package rag

import "fmt"

// Prompt templates are fixed: identical inputs must produce
// byte-identical prompts.
const answerTemplate = `You are an expert AI assistant. Below are a user question, document excerpts drawn from one or more indexed files, and a summarized history of the dialogue.

### Question:
%s

### Document context:
%s

### Conversation history:
%s

### Answer:`

const directTemplate = `You are an expert AI assistant. Below are a user question and a summarized history of the dialogue.

### Question:
%s

### Conversation history:
%s

### Answer:`

const summaryTemplate = `Summarize this text in 1 to 2 plain, clear sentences, as a synthesis for a non-expert reader.

Text:
%s

Summary:`

// BuildPrompt composes query, context and history into one generation
// request. Pure and deterministic.
func BuildPrompt(query, contextText, historyText string) string {
	return fmt.Sprintf(answerTemplate, query, contextText, historyText)
}

// BuildDirectPrompt composes a prompt without document context, for
// answering with retrieval disabled.
func BuildDirectPrompt(query, historyText string) string {
	return fmt.Sprintf(directTemplate, query, historyText)
}

// BuildSummaryPrompt asks for a short synthesis of an answer.
func BuildSummaryPrompt(answer string) string {
	return fmt.Sprintf(summaryTemplate, answer)
}
