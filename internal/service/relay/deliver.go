package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"gorm.io/datatypes"

	"github.com/zhouzirui/chat-relay/backend/internal/model/chat"
	"github.com/zhouzirui/chat-relay/backend/internal/service/answer"
)

const persistTimeout = 10 * time.Second

// BotMessage is the outbound frame for a bot turn.
type BotMessage struct {
	Sender           string          `json:"sender"`
	Timestamp        string          `json:"timestamp"`
	MessageID        string          `json:"message_id"`
	LoginRequired    bool            `json:"login_required"`
	Message          string          `json:"message"`
	RelatedQuestions json.RawMessage `json:"related_questions,omitempty"`
	CardList         json.RawMessage `json:"card_list,omitempty"`
	ToolName         string          `json:"tool_name,omitempty"`
}

// Delivery reports the two halves of a send-and-persist separately.
type Delivery struct {
	SendErr    error
	PersistErr error
}

// buildBotTurn turns an answer result into the outbound frame and the rows
// to store. A failed result becomes a readable fallback reply.
func (s *Service) buildBotTurn(sessionID string, personaID *uint, promptID *string, result answer.Result) (BotMessage, chat.Turn, chat.ResponseDetail) {
	now := s.now()
	text := result.Text
	if result.Err != nil {
		text = answer.FallbackText(result.Err)
	}

	msg := BotMessage{
		Sender:        "bot",
		Timestamp:     now.Format(time.RFC3339Nano),
		MessageID:     s.newID(),
		LoginRequired: result.LoginRequired(),
		Message:       text,
	}
	turn := chat.Turn{
		ID:        msg.MessageID,
		SessionID: sessionID,
		PersonaID: personaID,
		IsUser:    false,
		Content:   text,
		CreatedAt: now,
	}
	detail := chat.ResponseDetail{
		ChatID:       msg.MessageID,
		PromptChatID: promptID,
	}

	if result.Err == nil && result.Tool != nil {
		payload := result.Tool.Payload
		msg.RelatedQuestions = payload.RelatedQuestions
		msg.CardList = payload.CardList
		msg.ToolName = result.Tool.Name
		if result.Tool.Name != "" {
			name := result.Tool.Name
			detail.ToolName = &name
		}
		meta := chat.ToolMetadata{
			LoginRequired:    payload.LoginRequired,
			RelatedQuestions: payload.RelatedQuestions,
			CardList:         payload.CardList,
		}
		if !meta.Empty() {
			if raw, err := json.Marshal(meta); err == nil {
				detail.ToolMetadata = datatypes.JSON(raw)
			}
		}
	}
	return msg, turn, detail
}

// deliver pushes msg to the client and stores the turn at the same time and
// waits for both. The write uses a context detached from ctx so a closing
// connection does not cancel it.
func (s *Service) deliver(ctx context.Context, ch *Channel, msg BotMessage, turn chat.Turn, detail chat.ResponseDetail) Delivery {
	var (
		wg       sync.WaitGroup
		delivery Delivery
	)

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	wg.Add(2)
	go func() {
		defer wg.Done()
		defer recoverInto(&delivery.SendErr)
		delivery.SendErr = ch.SendJSON(msg)
	}()
	go func() {
		defer wg.Done()
		defer recoverInto(&delivery.PersistErr)
		delivery.PersistErr = s.store.SaveBotTurn(persistCtx, turn, detail)
	}()
	wg.Wait()

	return delivery
}

func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("panic: %v", r)
	}
}
