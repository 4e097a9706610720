package notifications

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/google/uuid"

	"carbon-scribe/marketplace/marketplace-backend/internal/auth"
	"carbon-scribe/marketplace/marketplace-backend/internal/settings"
)

// SESAPI is the subset of the SES v2 client used for email
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type UserDirectory interface {
	GetUser(ctx context.Context, id uuid.UUID) (*auth.User, error)
}

type PreferenceReader interface {
	GetNotifications(ctx context.Context, userID uuid.UUID) (*settings.NotificationPreferences, error)
}

// EmailSink emails the recipient of sale and review events, if they opted in.
type EmailSink struct {
	client SESAPI
	from   string
	users  UserDirectory
	prefs  PreferenceReader
}

func NewEmailSink(client SESAPI, from string, users UserDirectory, prefs PreferenceReader) *EmailSink {
	return &EmailSink{client: client, from: from, users: users, prefs: prefs}
}

func (s *EmailSink) Name() string { return "email" }

func (s *EmailSink) Deliver(ctx context.Context, evt Event) error {
	if evt.RecipientID == nil {
		return nil
	}
	subject, body, ok := renderEmail(evt)
	if !ok {
		return nil
	}

	prefs, err := s.prefs.GetNotifications(ctx, *evt.RecipientID)
	if err != nil {
		return fmt.Errorf("load preferences: %w", err)
	}
	switch evt.Type {
	case EventListingSold:
		if !prefs.EmailOnSale {
			return nil
		}
	case EventProjectReviewed:
		if !prefs.EmailOnReview {
			return nil
		}
	}

	user, err := s.users.GetUser(ctx, *evt.RecipientID)
	if err != nil {
		return fmt.Errorf("load recipient: %w", err)
	}

	_, err = s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: []string{user.Email}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body:    &types.Body{Text: &types.Content{Data: aws.String(body)}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	return nil
}

func renderEmail(evt Event) (subject, body string, ok bool) {
	switch evt.Type {
	case EventListingSold:
		return "Your carbon credit was sold",
			fmt.Sprintf("Your listing %s sold for %v. You can now claim the proceeds from your dashboard.",
				idOrEmpty(evt.ListingID), evt.Data["price"]),
			true
	case EventProjectReviewed:
		return "Your project was reviewed",
			fmt.Sprintf("Your project %q is now %v.", evt.Data["project_name"], evt.Data["status"]),
			true
	}
	return "", "", false
}

func idOrEmpty(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
