/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package notification

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/tally/config"
	"github.com/blnkfinance/tally/internal/request"
)

// SignatureHeader carries the hex HMAC-SHA256 of the webhook body.
const SignatureHeader = "X-Tally-Signature"

// Webhook is the envelope delivered to the configured webhook URL.
type Webhook struct {
	Event  string      `json:"event"`
	Data   interface{} `json:"data"`
	SentAt time.Time   `json:"sent_at"`
}

func slackMessage(err error, at time.Time) map[string]interface{} {
	field := func(label, value string) map[string]interface{} {
		return map[string]interface{}{
			"type": "section",
			"fields": []map[string]string{
				{"type": "mrkdwn", "text": fmt.Sprintf("*%s:*\n%s", label, value)},
			},
		}
	}
	return map[string]interface{}{
		"blocks": []interface{}{
			map[string]interface{}{
				"type": "header",
				"text": map[string]interface{}{"type": "plain_text", "text": "Error From Tally 🐞", "emoji": true},
			},
			field("Error", err.Error()),
			field("Time", at.Format(time.RFC822)),
		},
	}
}

// SlackNotification posts err to the configured Slack webhook.
func SlackNotification(err error) {
	conf, cfgErr := config.Fetch()
	if cfgErr != nil {
		log.Println(cfgErr)
		return
	}
	if sendErr := sendSlack(conf.Notification.Slack.WebhookUrl, err); sendErr != nil {
		log.Println(sendErr)
	}
}

func sendSlack(url string, err error) error {
	payload, marshalErr := request.ToJsonReq(slackMessage(err, time.Now()))
	if marshalErr != nil {
		return marshalErr
	}
	req, reqErr := http.NewRequest(http.MethodPost, url, payload)
	if reqErr != nil {
		return reqErr
	}
	_, callErr := request.Call(req, nil)
	return callErr
}

// NotifyError logs systemError and, when Slack is configured, reports it
// there without blocking the caller.
func NotifyError(systemError error) {
	go func(systemError error) {
		logrus.Error(systemError)

		conf, err := config.Fetch()
		if err != nil {
			log.Println(err)
			return
		}
		if conf.Notification.Slack.WebhookUrl != "" {
			SlackNotification(systemError)
		}
	}(systemError)
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SendWebhook delivers event to cfg.Url. The body is signed when a secret is
// configured and the configured headers are added to the request. A missing
// URL is not an error.
func SendWebhook(ctx context.Context, cfg config.WebhookConfig, event string, data interface{}) error {
	if cfg.Url == "" {
		return nil
	}
	body, err := json.Marshal(Webhook{Event: event, Data: data, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	for key, value := range cfg.Headers {
		req.Header.Set(key, value)
	}
	if cfg.Secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(cfg.Secret, body))
	}

	_, err = request.Call(req, nil)
	return err
}
