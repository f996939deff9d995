package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/smolvqa/backend/internal/config"
	"github.com/zhouzirui/smolvqa/backend/internal/imaging"
	vqaModel "github.com/zhouzirui/smolvqa/backend/internal/model/vqa"
)

// Service wraps the multimodal chat model behind the two operations the
// session store needs: captioning an image and answering questions about it.
type Service struct {
	chatModel model.ChatModel
	cfg       config.AIConfig
}

// NewService creates the inference service from configuration. Model
// resolution happened at config load; this only builds the client.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	return &Service{chatModel: chatModel, cfg: cfg}, nil
}

// ModelID reports the resolved model identifier for the health probe.
func (s *Service) ModelID() string {
	return s.cfg.Model
}

// Device reports the configured compute device label.
func (s *Service) Device() string {
	return s.cfg.Device
}

// Caption generates the initial one-shot caption for a freshly uploaded image.
func (s *Service) Caption(ctx context.Context, img imaging.Payload) (string, error) {
	messages := []*schema.Message{
		schema.SystemMessage(captionSystemPrompt),
		imageMessage(img, captionInstruction),
	}

	response, err := s.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("caption generation failed: %w", err)
	}

	caption := strings.TrimSpace(response.Content)
	if caption == "" {
		return "", errors.New("model returned an empty caption")
	}

	log.Printf("[ai] generated caption, format=%s size=%dx%d length=%d", img.Format, img.Width, img.Height, len(caption))
	return caption, nil
}

// Answer runs one question/answer turn. Prior turns are replayed in exactly
// the order they were appended; the image rides along with the first
// question so the model keeps seeing the same visual context.
func (s *Service) Answer(ctx context.Context, img imaging.Payload, turns []vqaModel.Turn, question string) (string, error) {
	messages := buildConversation(img, turns, question)

	response, err := s.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("answer generation failed: %w", err)
	}

	answer := strings.TrimSpace(response.Content)
	log.Printf("[ai] generated answer, turns=%d length=%d", len(turns), len(answer))
	return answer, nil
}

// AnswerStream is Answer with incremental delivery: content chunks go
// through emit as the model produces them, and the assembled answer is
// returned once the stream drains.
func (s *Service) AnswerStream(ctx context.Context, img imaging.Payload, turns []vqaModel.Turn, question string, emit func(chunk string) error) (string, error) {
	messages := buildConversation(img, turns, question)

	stream, err := s.chatModel.Stream(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("answer streaming failed: %w", err)
	}
	defer stream.Close()

	var builder strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("answer stream interrupted: %w", err)
		}
		if chunk.Content == "" {
			continue
		}
		builder.WriteString(chunk.Content)
		if err := emit(chunk.Content); err != nil {
			return "", fmt.Errorf("stream consumer rejected chunk: %w", err)
		}
	}

	return strings.TrimSpace(builder.String()), nil
}

// buildConversation assembles the model input: system prompt, then the
// image attached to the oldest question, every stored turn in append order,
// and the new question last.
func buildConversation(img imaging.Payload, turns []vqaModel.Turn, question string) []*schema.Message {
	messages := make([]*schema.Message, 0, 2*len(turns)+2)
	messages = append(messages, schema.SystemMessage(answerSystemPrompt))

	if len(turns) == 0 {
		return append(messages, imageMessage(img, question))
	}

	messages = append(messages, imageMessage(img, turns[0].Question))
	messages = append(messages, schema.AssistantMessage(turns[0].Answer, nil))
	for _, turn := range turns[1:] {
		messages = append(messages, schema.UserMessage(turn.Question))
		messages = append(messages, schema.AssistantMessage(turn.Answer, nil))
	}

	return append(messages, schema.UserMessage(question))
}

// imageMessage builds a user message carrying the image plus a text part.
func imageMessage(img imaging.Payload, text string) *schema.Message {
	return &schema.Message{
		Role: schema.User,
		MultiContent: []schema.ChatMessagePart{
			{
				Type: schema.ChatMessagePartTypeImageURL,
				ImageURL: &schema.ChatMessageImageURL{
					URL:      img.DataURL(),
					MIMEType: img.MIME,
					Detail:   schema.ImageURLDetailAuto,
				},
			},
			{
				Type: schema.ChatMessagePartTypeText,
				Text: text,
			},
		},
	}
}
