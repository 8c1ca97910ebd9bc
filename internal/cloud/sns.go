package cloud

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/domain"
)

// SNS rejects subjects longer than this.
const maxSubjectLen = 100

type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSNotifier publishes alert notifications to an SNS topic. The
// notification's own topic, when set, overrides the default one.
type SNSNotifier struct {
	api      SNSAPI
	topicArn string
}

func NewSNSNotifier(api SNSAPI, topicArn string) *SNSNotifier {
	return &SNSNotifier{api: api, topicArn: topicArn}
}

func (n *SNSNotifier) Notify(ctx context.Context, note domain.Notification) error {
	topic := note.Topic
	if topic == "" {
		topic = n.topicArn
	}

	input := &sns.PublishInput{
		TopicArn: aws.String(topic),
		Subject:  aws.String(subject(note.Title)),
		Message:  aws.String(note.Message),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"priority": {DataType: aws.String("String"), StringValue: aws.String(note.Priority)},
		},
	}
	if len(note.Tags) > 0 {
		input.MessageAttributes["tags"] = snstypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(strings.Join(note.Tags, ",")),
		}
	}

	result, err := n.api.Publish(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to publish to SNS: %w", err)
	}

	log.Debug().Str("component", "sns").Str("message_id", aws.ToString(result.MessageId)).Msg("alert published")
	return nil
}

// subject drops control characters and cuts the title to maxSubjectLen
// bytes without splitting a rune.
func subject(title string) string {
	title = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, title)
	if len(title) <= maxSubjectLen {
		return title
	}
	cut := maxSubjectLen
	for cut > 0 && !utf8.RuneStart(title[cut]) {
		cut--
	}
	return title[:cut]
}
