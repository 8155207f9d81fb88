package rag

import "fmt"

const groundedSystemPrompt = `You are a helpful assistant that answers questions based on the provided context.
Use the context to provide accurate, grounded answers. If the context only partially answers the question,
supplement with your knowledge but clearly indicate what comes from the documents vs your general knowledge.`

const generalSystemPrompt = `You are a helpful AI assistant. Answer questions directly and helpfully.
Since no relevant documents were found in the knowledge base, use your general knowledge to answer.`

func groundedUserPrompt(context, question string) string {
	return fmt.Sprintf(`Context from search results:
%s

Question: %s

Please provide a comprehensive answer based on the context above.`, context, question)
}

func generalUserPrompt(question string) string {
	return fmt.Sprintf(`Question: %s

Note: No relevant documents were found in the knowledge base. Please answer based on your general knowledge.`, question)
}
