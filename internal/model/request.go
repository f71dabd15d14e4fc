package model

type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type GoogleLoginRequest struct {
	IDToken string `json:"id_token"`
}

type UpdateProfileRequest struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type CreateChannelRequest struct {
	Name       string `json:"name"`
	ExternalID string `json:"external_id"`
}

type CreateVideoRequest struct {
	ChannelID string `json:"channel_id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
}

type ReportAnalyticsRequest struct {
	VideoID    string `json:"video_id"`
	Views      int64  `json:"views"`
	Likes      int64  `json:"likes"`
	Comments   int64  `json:"comments"`
	CapturedAt string `json:"captured_at"`
}

type ReportRunRequest struct {
	Workflow string `json:"workflow"`
	Status   string `json:"status"`
	Detail   string `json:"detail"`
}
