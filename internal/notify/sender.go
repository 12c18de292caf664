package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"restopos/internal/config"
	"restopos/internal/logger"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/fcm/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// ErrTokenInvalid means the device token will never accept messages again.
var ErrTokenInvalid = errors.New("push token is no longer valid")

// Message is one notification addressed to one device.
type Message struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
	Link  string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// FCMSender delivers through the Firebase Cloud Messaging HTTP v1 API.
type FCMSender struct {
	svc    *fcm.Service
	parent string
}

// NewFCMSender builds a sender from a service account. It returns nil and
// no error when no credentials are configured.
func NewFCMSender(ctx context.Context, cfg config.FirebaseConfig) (*FCMSender, error) {
	raw := []byte(cfg.CredentialsJSON)
	if len(raw) == 0 && cfg.CredentialsFile != "" {
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read firebase credentials: %w", err)
		}
		raw = b
	}
	if len(raw) == 0 {
		return nil, nil
	}

	creds, err := google.CredentialsFromJSON(ctx, raw, fcm.FirebaseMessagingScope)
	if err != nil {
		return nil, fmt.Errorf("invalid firebase credentials: %w", err)
	}
	projectID := cfg.ProjectID
	if projectID == "" {
		projectID = creds.ProjectID
	}
	if projectID == "" {
		var sa struct {
			ProjectID string `json:"project_id"`
		}
		_ = json.Unmarshal(raw, &sa)
		projectID = sa.ProjectID
	}
	if projectID == "" {
		return nil, errors.New("firebase project id is missing")
	}

	svc, err := fcm.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("create fcm service: %w", err)
	}
	return &FCMSender{svc: svc, parent: "projects/" + projectID}, nil
}

func (s *FCMSender) Send(ctx context.Context, msg Message) error {
	m := &fcm.Message{
		Token: msg.Token,
		Notification: &fcm.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
		Android: &fcm.AndroidConfig{
			Priority: "HIGH",
			Notification: &fcm.AndroidNotification{
				Sound:     "default",
				ChannelId: "order-updates",
			},
		},
		Apns: &fcm.ApnsConfig{
			Headers: map[string]string{
				"apns-priority":  "10",
				"apns-push-type": "alert",
			},
		},
	}
	if msg.Link != "" {
		m.Webpush = &fcm.WebpushConfig{FcmOptions: &fcm.WebpushFcmOptions{Link: msg.Link}}
	}

	_, err := s.svc.Projects.Messages.Send(s.parent, &fcm.SendMessageRequest{Message: m}).Context(ctx).Do()
	return classify(err)
}

// classify maps FCM's "unregistered" and "invalid argument" answers onto
// ErrTokenInvalid.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusNotFound, http.StatusBadRequest:
			return fmt.Errorf("%w: %v", ErrTokenInvalid, gerr.Message)
		}
	}
	return err
}

// LogSender stands in when push is not configured.
type LogSender struct {
	log *logger.Logger
}

func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.log.Debug("push disabled, dropping notification", "title", msg.Title)
	return nil
}
