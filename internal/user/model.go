package user

import "time"

type User struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	Password   string    `json:"-"`
	ProfileURL string    `json:"profileUrl"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Public is what other users may see.
type Public struct {
	ID         int64  `json:"id"`
	Username   string `json:"username"`
	ProfileURL string `json:"profileUrl"`
}

type ContactSummary struct {
	ChatID     int64  `json:"chatId"`
	UserID     int64  `json:"userId"`
	Username   string `json:"username"`
	ProfileURL string `json:"profileUrl"`
}

type ConversationSummary struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	ProfileURL string `json:"profileUrl"`
}

// Profile is the signed-in user together with every conversation they are
// part of, so a client can join the right rooms after connecting.
type Profile struct {
	User             *User                 `json:"user"`
	Contacts         []ContactSummary      `json:"contacts"`
	CreatedGroups    []ConversationSummary `json:"createdGroups"`
	MemberGroups     []ConversationSummary `json:"memberGroups"`
	CreatedChannels  []ConversationSummary `json:"createdChannels"`
	AdminChannels    []ConversationSummary `json:"adminChannels"`
	FollowedChannels []ConversationSummary `json:"followedChannels"`
}

type SignUpRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type SignInRequest struct {
	Username string `json:"username" validate:"required_without=Email"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"required"`
}

type UpdateRequest struct {
	Username   *string `json:"username" validate:"omitempty,min=3,max=50"`
	Email      *string `json:"email" validate:"omitempty,email,max=255"`
	Password   *string `json:"password" validate:"omitempty,min=8,max=72"`
	ProfileURL *string `json:"profileUrl" validate:"omitempty,max=2048"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type VerifyCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

type ResetPasswordRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Code     string `json:"code" validate:"required,len=6,numeric"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type SignUpResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

type SignInResponse struct {
	Token   string   `json:"token"`
	Profile *Profile `json:"profile"`
}
