package dispatch

import (
	"github.com/aws/aws-lambda-go/events"
	"github.com/valyala/fastjson"
)

// Delivered is a message body as published, with its routing key.
type Delivered struct {
	Body       string
	RoutingKey string
}

// FromSQS recovers the published message from an SQS message. Subscriptions
// with raw delivery carry the body and attributes as is; otherwise the body is
// the SNS notification envelope and the attributes are inside it.
func FromSQS(msg events.SQSMessage) Delivered {
	if attr, ok := msg.MessageAttributes[RoutingKeyAttribute]; ok && attr.StringValue != nil {
		return Delivered{Body: msg.Body, RoutingKey: *attr.StringValue}
	}

	var p fastjson.Parser
	v, err := p.Parse(msg.Body)
	if err != nil || string(v.GetStringBytes("Type")) != "Notification" || !v.Exists("Message") {
		return Delivered{Body: msg.Body}
	}
	return Delivered{
		Body:       string(v.GetStringBytes("Message")),
		RoutingKey: string(v.GetStringBytes("MessageAttributes", RoutingKeyAttribute, "Value")),
	}
}

// FromSNS recovers the published message from an SNS record.
func FromSNS(record events.SNSEventRecord) Delivered {
	d := Delivered{Body: record.SNS.Message}
	if attr, ok := record.SNS.MessageAttributes[RoutingKeyAttribute].(map[string]interface{}); ok {
		if value, ok := attr["Value"].(string); ok {
			d.RoutingKey = value
		}
	}
	return d
}
