package dto

import "github.com/thereayou/cipherchat/internal/models"

type RegisterRequest struct {
	DisplayName string `json:"display_name" binding:"required,min=1,max=50"`
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8,max=72"`
	PhotoURL    string `json:"photo_url" binding:"omitempty,url"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token   string         `json:"token"`
	Session models.Session `json:"session"`
}
