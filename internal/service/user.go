package service

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/bananagen/backend/internal/model"
	"github.com/bananagen/backend/internal/repository"
)

const refCodePrefix = "NB"

// How many times user creation retries a colliding ref code before giving up.
const refCodeRetries = 3

type UserService struct {
	store Store
}

func NewUserService(store Store) *UserService {
	return &UserService{store: store}
}

// TelegramUser is the identity object extracted from a Mini App init payload.
type TelegramUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// ParseInitData extracts the Telegram user and the referral start parameter
// from a URL-encoded init payload. Malformed or absent input is a valid
// "no identity" result, never an error.
func ParseInitData(initData string) (*TelegramUser, string) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, ""
	}

	userJSON := values.Get("user")
	if userJSON == "" {
		return nil, ""
	}

	var user TelegramUser
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil || user.ID == 0 {
		return nil, ""
	}

	startParam := values.Get("start_param")
	if startParam == "" {
		startParam = values.Get("startapp")
	}

	return &user, startParam
}

// GenerateRefCode derives a short public referral code from a Telegram user
// id: a multiply-by-31 rolling hash over the UTF-16 code units, rendered
// base-36. Deterministic by design; collisions are handled at creation time.
func GenerateRefCode(telegramUserID string) string {
	var hash uint32
	for _, unit := range utf16.Encode([]rune(telegramUserID)) {
		hash = hash*31 + uint32(unit)
	}
	return refCodePrefix + strings.ToUpper(strconv.FormatUint(uint64(hash), 36))
}

// GetOrCreateUser resolves a user from the init payload, creating the row on
// first contact. Returns (nil, nil) when no identity can be extracted.
//
// On creation the user receives the initial grant, and a valid referral code
// in the start parameter triggers the one-time bonus pair plus the referral
// record, applied atomically. An unknown or self-referencing code is skipped
// silently. On repeat contact the chat id and display names are refreshed.
func (s *UserService) GetOrCreateUser(ctx context.Context, initData, fallbackChatID string) (*model.User, error) {
	tgUser, startParam := ParseInitData(initData)
	if tgUser == nil {
		return nil, nil
	}

	telegramUserID := strconv.FormatInt(tgUser.ID, 10)
	chatID := fallbackChatID
	if chatID == "" {
		chatID = telegramUserID
	}

	existing, err := s.store.GetUserByTelegramID(ctx, telegramUserID)
	if err == nil {
		existing.ChatID = chatID
		existing.Username = optional(tgUser.Username)
		existing.FirstName = optional(tgUser.FirstName)
		existing.LastName = optional(tgUser.LastName)
		if err := s.store.UpdateUserContact(ctx, existing); err != nil {
			return nil, err
		}
		return s.store.GetUserByTelegramID(ctx, telegramUserID)
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	user := &model.User{
		TelegramUserID: telegramUserID,
		ChatID:         chatID,
		Username:       optional(tgUser.Username),
		FirstName:      optional(tgUser.FirstName),
		LastName:       optional(tgUser.LastName),
		Balance:        model.InitialBalance,
		RefCode:        GenerateRefCode(telegramUserID),
		ReferredBy:     optional(startParam),
	}

	var referrer *model.User
	if startParam != "" {
		ref, err := s.store.GetUserByRefCode(ctx, startParam)
		if err == nil && ref.TelegramUserID != telegramUserID {
			referrer = ref
		} else if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
			return nil, err
		}
	}

	for attempt := 0; ; attempt++ {
		if referrer != nil {
			err = s.store.CreateUserWithReferral(ctx, user, referrer, model.ReferrerBonus, model.ReferredBonus)
		} else {
			err = s.store.CreateUser(ctx, user)
		}
		if err == nil {
			break
		}
		if errors.Is(err, repository.ErrRefCodeTaken) && attempt < refCodeRetries {
			user.RefCode = saltedRefCode(telegramUserID)
			continue
		}
		if errors.Is(err, repository.ErrUserExists) {
			// Lost a concurrent get-or-create race; the other request's row wins.
			return s.store.GetUserByTelegramID(ctx, telegramUserID)
		}
		return nil, err
	}

	return s.store.GetUserByTelegramID(ctx, telegramUserID)
}

func (s *UserService) GetUser(ctx context.Context, telegramUserID string) (*model.User, error) {
	return s.store.GetUserByTelegramID(ctx, telegramUserID)
}

// GetBalance reports 0 for unknown users.
func (s *UserService) GetBalance(ctx context.Context, telegramUserID string) (int, error) {
	balance, err := s.store.GetBalance(ctx, telegramUserID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return 0, nil
	}
	return balance, err
}

func (s *UserService) AcceptTerms(ctx context.Context, telegramUserID string) error {
	return s.store.SetTermsAccepted(ctx, telegramUserID, time.Now())
}

func saltedRefCode(telegramUserID string) string {
	salt := strings.ToUpper(strconv.FormatInt(rand.Int63n(36*36*36*36), 36))
	return GenerateRefCode(telegramUserID) + salt
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
