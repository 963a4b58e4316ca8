package qa

import "fmt"

const condenseTemplate = `Given the following conversation history and a follow up question, rephrase the follow up question to be a standalone question.

Chat History:
%s

Follow Up Question: %s
Standalone Question:`

const answerTemplate = `You are a helpful AI assistant with access to uploaded documents.

First, determine if the user's question is:
1. A general question (greetings, general knowledge, casual conversation) - Answer naturally without requiring document context
2. A document-specific question (asking about the uploaded documents) - Use the provided context to answer

Chat History:
%s

Context from uploaded documents:
%s

Current Question: %s

Instructions:
- Use the chat history to understand the conversation context
- If this is a general question or greeting, start your response with [GENERAL] then answer naturally
- If you used the document context to answer, start your response with [DOCS] then provide your answer
- If this is about the documents but the context doesn't contain the answer, start with [DOCS] and say you cannot find that information

Format: [GENERAL] or [DOCS] followed by your answer.

Answer:`

// condensePrompt renders the standalone-question rewrite prompt.
func condensePrompt(history, question string) string {
	return fmt.Sprintf(condenseTemplate, history, question)
}

// answerPrompt renders the final synthesis prompt.
func answerPrompt(history, context, question string) string {
	return fmt.Sprintf(answerTemplate, history, context, question)
}
