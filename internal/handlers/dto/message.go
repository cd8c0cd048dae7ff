package dto

import "github.com/thereayou/cipherchat/internal/models"

// MessagePayload структура для входящих сообщений
type MessagePayload struct {
	Text   string `json:"text"`
	IsCode bool   `json:"is_code"`
}

type EditMessageRequest struct {
	Text string `json:"text"`
}

// MessageResponse сообщение вместе с открытым текстом
type MessageResponse struct {
	models.Message
	Text string `json:"text"`
}

type ReadResponse struct {
	ReadBy []string `json:"read_by"`
}
