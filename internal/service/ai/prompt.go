package ai

const captionSystemPrompt = "You are an image captioning assistant. " +
	"Describe the provided image accurately without speculating beyond what is visible."

const captionInstruction = "Describe this image in one or two concise sentences."

const answerSystemPrompt = "You are a visual question answering assistant. " +
	"Answer questions about the provided image concisely and truthfully. " +
	"If the image does not contain the answer, say so instead of guessing."
