package models

// ChatMessage is one prior turn of an assistant conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message             string        `json:"message"`
	ConversationHistory []ChatMessage `json:"conversationHistory"`
}

// ChatResponse is the assistant's reply with the listings it recommends.
type ChatResponse struct {
	Response              string  `json:"response"`
	RecommendedAnuncioIDs []int64 `json:"recommendedAnuncioIds"`
	HasRecommendations    bool    `json:"hasRecommendations"`
}
