package utils

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/messaging"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"google.golang.org/api/option"
)

// PushService wraps the outbound FCM and Twilio clients. FCM carries both the
// user-visible fallback notifications and the silent data commands that drive
// the device's native alarm facility.
type PushService struct {
	fcmClient    *messaging.Client
	twilioClient *twilio.RestClient
	twilioNumber string
}

type PushNotification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data"`
	Sound string            `json:"sound,omitempty"`
	Badge int               `json:"badge,omitempty"`
}

type PushResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

func NewPushService(firebaseCredentials, twilioSID, twilioToken, twilioNumber string) (*PushService, error) {
	opt := option.WithCredentialsFile(firebaseCredentials)
	app, err := firebase.NewApp(context.Background(), nil, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase: %v", err)
	}

	fcmClient, err := app.Messaging(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize FCM client: %v", err)
	}

	twilioClient := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: twilioSID,
		Password: twilioToken,
	})

	return &PushService{
		fcmClient:    fcmClient,
		twilioClient: twilioClient,
		twilioNumber: twilioNumber,
	}, nil
}

// SendNotification delivers a user-visible push notification to a device.
func (ps *PushService) SendNotification(ctx context.Context, deviceToken string, notification PushNotification) (*PushResult, error) {
	message := &messaging.Message{
		Token: deviceToken,
		Notification: &messaging.Notification{
			Title: notification.Title,
			Body:  notification.Body,
		},
		Data: notification.Data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound:       notification.Sound,
				Icon:        "ic_alarm",
				ChannelID:   "alarms",
				ClickAction: "OPEN_ALARM",
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Alert: &messaging.ApsAlert{
						Title: notification.Title,
						Body:  notification.Body,
					},
					Badge: &notification.Badge,
					Sound: notification.Sound,
				},
			},
		},
	}

	response, err := ps.fcmClient.Send(ctx, message)
	if err != nil {
		return &PushResult{
			Success: false,
			Error:   err.Error(),
		}, err
	}

	return &PushResult{
		Success:   true,
		MessageID: response,
	}, nil
}

// SendCommand delivers a silent data-only message. The app's background handler
// translates these into native alarm facility calls (set, cancel, prompt).
func (ps *PushService) SendCommand(ctx context.Context, deviceToken string, data map[string]string) (*PushResult, error) {
	message := &messaging.Message{
		Token: deviceToken,
		Data:  data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority":  "5",
				"apns-push-type": "background",
			},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					ContentAvailable: true,
				},
			},
		},
	}

	response, err := ps.fcmClient.Send(ctx, message)
	if err != nil {
		return &PushResult{
			Success: false,
			Error:   err.Error(),
		}, err
	}

	return &PushResult{
		Success:   true,
		MessageID: response,
	}, nil
}

// SendSMS sends an operator alert via Twilio.
func (ps *PushService) SendSMS(ctx context.Context, to, body string) (*PushResult, error) {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(ps.twilioNumber)
	params.SetBody(body)

	resp, err := ps.twilioClient.Api.CreateMessage(params)
	if err != nil {
		return &PushResult{
			Success: false,
			Error:   err.Error(),
		}, err
	}

	result := &PushResult{Success: true}
	if resp.Sid != nil {
		result.MessageID = *resp.Sid
	}
	return result, nil
}
